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

// Package model_test - This file tests the normalization rules applied to
// generated-copy metadata before any of it is trusted downstream.
package model_test

import (
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/stretchr/testify/assert"
)

// TestNormalizeSentiment verifies the sentiment vocabulary repair: exact
// matches, case and separator cleanup, compound values resolving before
// their substrings, and the relatable fallback for unrecognizable input.
func TestNormalizeSentiment(t *testing.T) {
	assert.Equal(t, model.SentimentHumorous, model.NormalizeSentiment("humorous"))
	assert.Equal(t, model.SentimentEducational, model.NormalizeSentiment(" Educational "))
	assert.Equal(t, model.SentimentCuriousEducational, model.NormalizeSentiment("Curious Educational"))
	// The compound candidate is checked first, so a decorated compound label
	// does not collapse to plain educational.
	assert.Equal(t, model.SentimentCuriousEducational, model.NormalizeSentiment("a curious educational tone"))
	assert.Equal(t, model.SentimentInspirational, model.NormalizeSentiment("deeply inspirational"))
	assert.Equal(t, model.SentimentRelatable, model.NormalizeSentiment("melancholic"))
	assert.Equal(t, model.SentimentRelatable, model.NormalizeSentiment(""))
}

// TestNormalizeHookStrength verifies the hook vocabulary repair, in
// particular that "very high" resolves before its "high" substring, and the
// medium fallback.
func TestNormalizeHookStrength(t *testing.T) {
	assert.Equal(t, model.HookVeryHigh, model.NormalizeHookStrength("very_high"))
	assert.Equal(t, model.HookVeryHigh, model.NormalizeHookStrength("Very High"))
	assert.Equal(t, model.HookHigh, model.NormalizeHookStrength("high"))
	assert.Equal(t, model.HookLow, model.NormalizeHookStrength("quite low honestly"))
	assert.Equal(t, model.HookMedium, model.NormalizeHookStrength("whatever"))
	assert.Equal(t, model.HookMedium, model.NormalizeHookStrength(""))
}

// TestNormalizeTopics verifies topic list cleanup: whitespace trimming,
// case-insensitive de-duplication with the first casing winning, the max
// cap, and the short-list flag.
func TestNormalizeTopics(t *testing.T) {
	topics, tooFew := model.NormalizeTopics(
		[]string{" Sourdough ", "sourdough", "", "hydration", "Baking", "gluten", "scoring", "shaping"}, 3, 5)

	assert.False(t, tooFew)
	assert.Equal(t, []string{"Sourdough", "hydration", "Baking", "gluten", "scoring"}, topics)

	topics, tooFew = model.NormalizeTopics([]string{"caramel", "caramel", "CARAMEL"}, 3, 5)
	assert.True(t, tooFew)
	assert.Equal(t, []string{"caramel"}, topics)

	topics, tooFew = model.NormalizeTopics(nil, 3, 5)
	assert.True(t, tooFew)
	assert.Empty(t, topics)
}

// TestClampScore verifies range clamping at both bounds and pass-through in
// between.
func TestClampScore(t *testing.T) {
	assert.Equal(t, 1.0, model.ClampScore(-2.0, 1, 10))
	assert.Equal(t, 10.0, model.ClampScore(14.7, 1, 10))
	assert.Equal(t, 7.5, model.ClampScore(7.5, 1, 10))
	assert.Equal(t, 0.0, model.ClampScore(-0.1, 0, 1))
	assert.Equal(t, 1.0, model.ClampScore(1.8, 0, 1))
}

// TestHasFlag verifies validation flag lookup on a copy.
func TestHasFlag(t *testing.T) {
	copy := &model.GeneratedCopy{ValidationFlags: []string{model.FlagTruncated}}
	assert.True(t, copy.HasFlag(model.FlagTruncated))
	assert.False(t, copy.HasFlag(model.FlagTooFewTopics))

	bare := &model.GeneratedCopy{}
	assert.False(t, bare.HasFlag(model.FlagTruncated))
}
