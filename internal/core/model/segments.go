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
// This file, `segments.go`, contains the input-side types: the Pub/Sub
// request message that triggers a pipeline run, the segment manifest read
// from Cloud Storage, and the classification types that assign a caption
// style to each segment before generation begins.
package model

import (
	"sort"
	"strings"
)

// The fixed set of caption styles. Classification may return free-form
// text, so every style read from a backend response is passed through
// NormalizeStyle before it is trusted anywhere downstream.
const (
	StyleViral        = "viral"
	StyleEducational  = "educational"
	StyleStorytelling = "storytelling"
)

// AllStyles returns the styles in their canonical emission order. Group
// ordering, distribution counts, and report layout all follow this order,
// so it must stay stable across releases.
func AllStyles() []string {
	return []string{StyleViral, StyleEducational, StyleStorytelling}
}

// NormalizeStyle maps a raw style label from a backend response onto the
// canonical style set. Matching is case-insensitive and tolerates
// decorated labels (e.g. "Viral Hook" -> "viral"). An empty string is
// returned when no canonical style can be recognized, which marks the
// segment as unclassified.
func NormalizeStyle(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	for _, style := range AllStyles() {
		if cleaned == style {
			return style
		}
	}
	for _, style := range AllStyles() {
		if strings.Contains(cleaned, style) {
			return style
		}
	}
	return ""
}

// StyleDirective returns the instruction block appended to the generation
// prompt for a style group. Directives are intentionally short; the heavy
// lifting is done by the system instructions configured per agent model.
func StyleDirective(style string) string {
	switch style {
	case StyleViral:
		return "Write punchy, high-energy captions engineered to stop the scroll. Lead with the single most surprising fact in the transcript."
	case StyleEducational:
		return "Write clear, authoritative captions that promise a concrete takeaway. Lead with the lesson, not the setup."
	case StyleStorytelling:
		return "Write narrative captions that open mid-story and create a curiosity gap the viewer must resolve by watching."
	default:
		return "Write a concise, engaging caption grounded in the transcript."
	}
}

// CaptionRequest is the message published to the request topic to start a
// pipeline run. The manifest coordinates point at a SegmentManifest JSON
// object in Cloud Storage. CorrelationId may be empty, in which case the
// trigger reader derives a deterministic id from the manifest object name
// so that a redelivered message does not produce a second report identity.
type CaptionRequest struct {
	CorrelationId  string `json:"correlation_id,omitempty"` // Unique id threaded through the run and into the final report.
	ManifestBucket string `json:"manifest_bucket"`          // GCS bucket holding the segment manifest.
	ManifestObject string `json:"manifest_object"`          // GCS object name of the segment manifest.
	Model          string `json:"model,omitempty"`          // Optional generator model override for this run.
	FallbackStyle  string `json:"fallback_style,omitempty"` // Optional per-request override of the unclassified-segment fallback style.
}

// ClipSegment is a single time-bounded unit of source content with its
// transcript. Segments are produced by an upstream segmentation stage and
// are treated as immutable by every pipeline stage.
type ClipSegment struct {
	Id              int     `json:"id"`              // Caller-assigned segment id; all correlation is done on this value.
	TranscriptText  string  `json:"transcriptText"`  // Transcript of the segment.
	DurationSeconds float64 `json:"durationSeconds"` // Segment duration, used to clamp thumbnail timestamps.
}

// SegmentManifest is the JSON document read from the manifest bucket. It
// carries the full ordered segment list for one source.
type SegmentManifest struct {
	SourceId string         `json:"sourceId,omitempty"` // Identifier of the source media the segments were cut from.
	Segments []*ClipSegment `json:"segments"`           // Ordered segments to caption.
}

// SortSegments orders segments by ascending id and drops duplicates,
// keeping the first occurrence of each id. All downstream stages assume
// this canonical ordering.
func SortSegments(segments []*ClipSegment) []*ClipSegment {
	out := make([]*ClipSegment, 0, len(segments))
	seen := make(map[int]bool)
	for _, s := range segments {
		if s == nil || seen[s.Id] {
			continue
		}
		seen[s.Id] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// ClassificationResult is the classifier's verdict for a single segment.
// Coverage may be partial: a segment whose sub-batch failed simply has no
// ClassificationResult, and the grouper decides its fate via the fallback
// style configuration.
type ClassificationResult struct {
	SegmentId  int     `json:"segmentId"`           // Id of the classified segment.
	Style      string  `json:"style"`               // Canonical style, already normalized.
	Confidence float64 `json:"confidence"`          // Classifier confidence, clamped to [0,1].
	Rationale  string  `json:"rationale,omitempty"` // Short free-text justification from the classifier.
}

// ClassificationEnvelope is the object shape the classifier model is asked
// to produce. Responses are decoded defensively, so a bare array is also
// accepted, but the envelope is what the few-shot example teaches.
type ClassificationEnvelope struct {
	Classifications []*ClassificationResult `json:"classifications"`
}

// StyleGroup is one generation unit: all segments that resolved to the
// same style. Groups are emitted in AllStyles() order and each group's
// segments are sorted by id, so generation order is reproducible for a
// given classification outcome.
type StyleGroup struct {
	Style    string         `json:"style"`
	Segments []*ClipSegment `json:"segments"`
}
