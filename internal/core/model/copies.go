// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the core data structures for the caption pipeline.
// This file, `copies.go`, contains the generated-copy types together with
// the normalization rules applied to backend output before it is trusted.
// The generation backend is treated as untrusted: enum values arrive in
// whatever casing and wording the model chose, numbers arrive as strings,
// and scores drift outside their declared ranges. Everything here maps
// that output onto the canonical vocabulary instead of rejecting it.
package model

import "strings"

// The canonical sentiment vocabulary. Values outside this set are mapped
// to the nearest known value by NormalizeSentiment, never rejected.
const (
	SentimentEducational        = "educational"
	SentimentHumorous           = "humorous"
	SentimentInspirational      = "inspirational"
	SentimentControversial      = "controversial"
	SentimentCuriousEducational = "curious_educational"
	SentimentRelatable          = "relatable"
	SentimentStorytelling       = "storytelling"
)

// sentimentCandidates is the substring-match order for sentiment repair.
// Compound values come first so "curious educational tone" resolves to
// curious_educational rather than educational.
var sentimentCandidates = []string{
	SentimentCuriousEducational,
	SentimentEducational,
	SentimentHumorous,
	SentimentInspirational,
	SentimentControversial,
	SentimentRelatable,
	SentimentStorytelling,
}

// The hook strength vocabulary, strongest first. very_high precedes high
// in the match order because the latter is a substring of the former.
const (
	HookVeryHigh = "very_high"
	HookHigh     = "high"
	HookMedium   = "medium"
	HookLow      = "low"
)

var hookCandidates = []string{HookVeryHigh, HookHigh, HookMedium, HookLow}

// NormalizeSentiment maps a raw sentiment label onto the canonical
// vocabulary. Matching is case-insensitive, tolerates spaces in place of
// underscores, and falls back to substring matching for decorated labels
// like "Humorous and light". Unrecognizable input resolves to relatable,
// the most neutral member of the set.
func NormalizeSentiment(raw string) string {
	cleaned := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	for _, c := range sentimentCandidates {
		if cleaned == c {
			return c
		}
	}
	for _, c := range sentimentCandidates {
		if strings.Contains(cleaned, c) {
			return c
		}
	}
	return SentimentRelatable
}

// NormalizeHookStrength maps a raw hook label onto the canonical
// vocabulary using the same cleanup rules as NormalizeSentiment.
// Unrecognizable input resolves to medium.
func NormalizeHookStrength(raw string) string {
	cleaned := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	for _, c := range hookCandidates {
		if cleaned == c {
			return c
		}
	}
	for _, c := range hookCandidates {
		if strings.Contains(cleaned, c) {
			return c
		}
	}
	return HookMedium
}

// NormalizeTopics trims and de-duplicates a topic list. Duplicates are
// detected case-insensitively and the first casing wins, preserving the
// backend's original order. Lists longer than max are truncated. The
// second return value reports whether the cleaned list came up short of
// min, which flags the copy without dropping it.
func NormalizeTopics(topics []string, min int, max int) ([]string, bool) {
	out := make([]string, 0, len(topics))
	seen := make(map[string]bool)
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out, len(out) < min
}

// ClampScore forces a numeric score into [lo, hi]. Out-of-range values
// from the backend are clamped rather than rejected.
func ClampScore(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CopyMetadata carries the per-caption quality signals the generator is
// asked to estimate. Field ranges are enforced by the validator:
// SentimentScore in [0,1], EngagementScore and ViralPotential in [1,10],
// SuggestedThumbnailTimestamp in [0, segment duration].
type CopyMetadata struct {
	Sentiment                   string   `json:"sentiment"`
	SentimentScore              float64  `json:"sentimentScore"`
	EngagementScore             float64  `json:"engagementScore"`
	SuggestedThumbnailTimestamp float64  `json:"suggestedThumbnailTimestamp"`
	PrimaryTopics               []string `json:"primaryTopics"`
	HookStrength                string   `json:"hookStrength"`
	ViralPotential              float64  `json:"viralPotential"`
}

// GeneratedCopy is one validated caption for one clip. Instances start
// life as untrusted drafts decoded from a backend response and only enter
// the valid-copy list after the validator has normalized every field.
//
// ValidationFlags records what the validator had to repair (for example
// "truncated" or "too_few_topics"). The flags drive retry diagnosis and
// are deliberately excluded from the report JSON.
type GeneratedCopy struct {
	ClipId          int           `json:"clipId"`
	Copy            string        `json:"copy"`
	Style           string        `json:"style,omitempty"`
	Metadata        *CopyMetadata `json:"metadata"`
	ValidationFlags []string      `json:"-"`
}

// HasFlag reports whether the validator recorded the given repair flag.
func (g *GeneratedCopy) HasFlag(flag string) bool {
	for _, f := range g.ValidationFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// DraftEnvelope is the object shape the generator model is asked to
// produce for a style group. As with classifications, a bare array is
// also accepted at decode time.
type DraftEnvelope struct {
	Clips []*GeneratedCopy `json:"clips"`
}
