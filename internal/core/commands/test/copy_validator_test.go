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

// Package commands_test contains unit tests for the pure decision and
// normalization functions behind the pipeline commands. Everything in this
// package runs without a model call or a cloud client: the commands expose
// their core logic as plain functions precisely so these paths can be
// exercised with hand-built inputs.
package commands_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/commands"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brandTag = "#AICDMX"

// TestRepairCaptionAppendsMissingBrandTag verifies that a caption without
// the brand tag gets it appended as the final token without counting as a
// truncation.
func TestRepairCaptionAppendsMissingBrandTag(t *testing.T) {
	repaired, truncated := commands.RepairCaption(
		"Three knife cuts every beginner should master first", brandTag, commands.CaptionMaxLength)

	assert.Equal(t, "Three knife cuts every beginner should master first #AICDMX", repaired)
	assert.False(t, truncated)
}

// TestRepairCaptionMovesBrandTagToEnd verifies that a brand tag buried in
// the middle of the caption is pulled out and re-appended as the final
// token, matching case-insensitively so "#aicdmx" does not survive as a
// duplicate.
func TestRepairCaptionMovesBrandTagToEnd(t *testing.T) {
	repaired, truncated := commands.RepairCaption(
		"The #aicdmx dough needs two rests before it goes anywhere near the oven", brandTag, commands.CaptionMaxLength)

	assert.Equal(t, "The dough needs two rests before it goes anywhere near the oven #AICDMX", repaired)
	assert.Equal(t, 1, strings.Count(repaired, "AICDMX"))
	assert.False(t, truncated)
}

// TestRepairCaptionStripsDecorativeHashtags verifies the over-length repair
// order: trailing decorative hashtags are removed nearest the end first, and
// removal stops as soon as the caption fits. The fixture is sized so that
// dropping "#viral" alone brings it under the limit, leaving "#foodie" in
// place.
func TestRepairCaptionStripsDecorativeHashtags(t *testing.T) {
	caption := "Watch a plain pan of sugar turn into a glass sheet of caramel in under ten minutes with no thermometer and no fancy tools involved #foodie #viral"

	repaired, truncated := commands.RepairCaption(caption, brandTag, commands.CaptionMaxLength)

	assert.True(t, truncated)
	assert.LessOrEqual(t, utf8.RuneCountInString(repaired), commands.CaptionMaxLength)
	assert.True(t, strings.HasSuffix(repaired, brandTag))
	assert.Contains(t, repaired, "#foodie")
	assert.NotContains(t, repaired, "#viral")
	assert.Equal(t, 1, strings.Count(repaired, brandTag))
}

// TestRepairCaptionHardTruncatesLongMessage verifies the fallback when an
// over-length caption has no removable hashtags: the message text itself is
// cut to fit ahead of the brand tag, measured in runes.
func TestRepairCaptionHardTruncatesLongMessage(t *testing.T) {
	caption := "The trick to caramel that never burns is heat control, and this clip walks through the exact pan, the exact flame height, and the exact moment to pull it off the stove for a perfect amber every time"

	repaired, truncated := commands.RepairCaption(caption, brandTag, commands.CaptionMaxLength)

	assert.True(t, truncated)
	assert.Equal(t, commands.CaptionMaxLength, utf8.RuneCountInString(repaired))
	assert.True(t, strings.HasSuffix(repaired, brandTag))
	assert.True(t, strings.HasPrefix(repaired, "The trick to caramel that never burns"))
}

// TestNormalizeCopyRepairsEverything runs one draft through the full repair
// path: out-of-range scores clamp, enum values resolve through their
// vocabularies, duplicate topics collapse with the first casing winning, and
// the thumbnail timestamp clamps into the segment's duration.
func TestNormalizeCopyRepairsEverything(t *testing.T) {
	segment := &model.ClipSegment{Id: 4, TranscriptText: "The secret is resting the dough twice.", DurationSeconds: 27.0}
	draft := &model.GeneratedCopy{
		ClipId: 4,
		Copy:   "  Your bread collapses because you skip the second rest, and this is the fix  ",
		Style:  model.StyleEducational,
		Metadata: &model.CopyMetadata{
			Sentiment:                   "Curious Educational tone",
			SentimentScore:              1.8,
			EngagementScore:             12.0,
			SuggestedThumbnailTimestamp: 99.0,
			PrimaryTopics:               []string{"bread baking", "Bread Baking", "proofing", "dough resting", "hydration", "gluten"},
			HookStrength:                "Very High",
			ViralPotential:              0.4,
		},
	}

	normalized, reason, ok := commands.NormalizeCopy(draft, segment, brandTag)

	require.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, 4, normalized.ClipId)
	assert.Equal(t, model.StyleEducational, normalized.Style)
	assert.Equal(t, "Your bread collapses because you skip the second rest, and this is the fix #AICDMX", normalized.Copy)

	// Enum repair through the canonical vocabularies.
	assert.Equal(t, model.SentimentCuriousEducational, normalized.Metadata.Sentiment)
	assert.Equal(t, model.HookVeryHigh, normalized.Metadata.HookStrength)

	// Score clamping into the declared ranges.
	assert.Equal(t, 1.0, normalized.Metadata.SentimentScore)
	assert.Equal(t, 10.0, normalized.Metadata.EngagementScore)
	assert.Equal(t, 1.0, normalized.Metadata.ViralPotential)
	assert.Equal(t, 27.0, normalized.Metadata.SuggestedThumbnailTimestamp)

	// Six raw topics: the case-insensitive duplicate collapses (keeping the
	// first casing) and the list caps at five.
	assert.Equal(t, []string{"bread baking", "proofing", "dough resting", "hydration", "gluten"}, normalized.Metadata.PrimaryTopics)
	assert.Empty(t, normalized.ValidationFlags)
}

// TestNormalizeCopyFlagsRepairs verifies that lossy repairs are recorded as
// validation flags so the quality analyzer can diagnose them later. The
// fixture caption is over-length with a droppable hashtag and carries only
// two topics.
func TestNormalizeCopyFlagsRepairs(t *testing.T) {
	segment := &model.ClipSegment{Id: 2, DurationSeconds: 31.5}
	draft := &model.GeneratedCopy{
		ClipId: 2,
		Copy:   "Watch a plain pan of sugar turn into a glass sheet of caramel in under ten minutes with no thermometer and no fancy tools involved #foodie #viral",
		Style:  model.StyleViral,
		Metadata: &model.CopyMetadata{
			Sentiment:                   "humorous",
			SentimentScore:              0.7,
			EngagementScore:             8.0,
			SuggestedThumbnailTimestamp: -3.0,
			PrimaryTopics:               []string{"caramel", "sugar work"},
			HookStrength:                "high",
			ViralPotential:              8.0,
		},
	}

	normalized, _, ok := commands.NormalizeCopy(draft, segment, brandTag)

	require.True(t, ok)
	assert.True(t, normalized.HasFlag(model.FlagTruncated))
	assert.True(t, normalized.HasFlag(model.FlagTooFewTopics))
	// A negative thumbnail clamps at zero rather than the segment duration.
	assert.Equal(t, 0.0, normalized.Metadata.SuggestedThumbnailTimestamp)
	// The two usable topics survive even though they flag the copy.
	assert.Equal(t, []string{"caramel", "sugar work"}, normalized.Metadata.PrimaryTopics)
}

// TestNormalizeCopyFillsMissingMetadata verifies that a draft without a
// metadata block normalizes from zero values instead of being dropped.
func TestNormalizeCopyFillsMissingMetadata(t *testing.T) {
	draft := &model.GeneratedCopy{
		ClipId: 7,
		Copy:   "She carried one recipe out of Oaxaca and today it finally gets made on camera",
	}

	normalized, _, ok := commands.NormalizeCopy(draft, nil, brandTag)

	require.True(t, ok)
	require.NotNil(t, normalized.Metadata)
	assert.Equal(t, model.SentimentRelatable, normalized.Metadata.Sentiment)
	assert.Equal(t, model.HookMedium, normalized.Metadata.HookStrength)
	assert.Equal(t, 1.0, normalized.Metadata.EngagementScore)
	assert.Equal(t, 1.0, normalized.Metadata.ViralPotential)
	assert.Equal(t, 0.0, normalized.Metadata.SentimentScore)
	assert.True(t, normalized.HasFlag(model.FlagTooFewTopics))
}

// TestNormalizeCopyRejectsUnrepairableDrafts covers the three cases the
// repair-first policy cannot save: a missing draft, an empty caption, and a
// caption still under the minimum length after repair.
func TestNormalizeCopyRejectsUnrepairableDrafts(t *testing.T) {
	normalized, reason, ok := commands.NormalizeCopy(nil, nil, brandTag)
	assert.False(t, ok)
	assert.Nil(t, normalized)
	assert.Equal(t, "missing draft", reason)

	normalized, reason, ok = commands.NormalizeCopy(&model.GeneratedCopy{ClipId: 1, Copy: "   "}, nil, brandTag)
	assert.False(t, ok)
	assert.Nil(t, normalized)
	assert.Equal(t, "empty caption", reason)

	normalized, reason, ok = commands.NormalizeCopy(&model.GeneratedCopy{ClipId: 1, Copy: "Nice clip"}, nil, brandTag)
	assert.False(t, ok)
	assert.Nil(t, normalized)
	assert.Equal(t, "caption shorter than 20 characters", reason)
}
