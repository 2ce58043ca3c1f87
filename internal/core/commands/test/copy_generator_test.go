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

package commands_test

import (
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/commands"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// viralGroup builds the style group the draft decoding tests issue their
// fake responses against.
func viralGroup() *model.StyleGroup {
	return &model.StyleGroup{
		Style: model.StyleViral,
		Segments: []*model.ClipSegment{
			{Id: 2, TranscriptText: "sugar at 170 degrees", DurationSeconds: 31.5},
			{Id: 5, TranscriptText: "the flip that went wrong", DurationSeconds: 22.0},
		},
	}
}

// TestDecodeDraftsEnvelope verifies the documented clips envelope decodes
// with the group's style stamped onto every draft and the metadata carried
// through untouched; clamping belongs to the validator, not the decoder.
func TestDecodeDraftsEnvelope(t *testing.T) {
	payload := `{
  "clips": [
    {
      "clipId": 2,
      "copy": "The 170 degree moment nobody believed a home cook could pull off #AICDMX",
      "metadata": {
        "sentiment": "humorous",
        "sentimentScore": 0.74,
        "engagementScore": 8.4,
        "suggestedThumbnailTimestamp": 3.0,
        "primaryTopics": ["sugar work", "caramel", "home cooking"],
        "hookStrength": "very_high",
        "viralPotential": 12.0
      }
    }
  ]
}`

	drafts, err := commands.DecodeDrafts(payload, viralGroup())

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 2, drafts[0].ClipId)
	assert.Equal(t, model.StyleViral, drafts[0].Style)
	require.NotNil(t, drafts[0].Metadata)
	assert.Equal(t, 8.4, drafts[0].Metadata.EngagementScore)
	// The decoder does not clamp; the out-of-range viral potential survives
	// until validation.
	assert.Equal(t, 12.0, drafts[0].Metadata.ViralPotential)
	assert.Equal(t, []string{"sugar work", "caramel", "home cooking"}, drafts[0].Metadata.PrimaryTopics)
}

// TestDecodeDraftsToleratesDrift verifies the shapes the decoder absorbs: a
// bare array, alternate caption and id keys, snake_case metadata keys,
// numbers as strings, and topics as a single string.
func TestDecodeDraftsToleratesDrift(t *testing.T) {
	payload := `[
  {
    "segmentId": "2",
    "caption": "Sugar hits 170 and the whole kitchen goes quiet #AICDMX",
    "metadata": {
      "sentiment": "humorous",
      "engagement_score": "7.9",
      "hook_strength": "high",
      "viral_potential": 7.0,
      "primary_topics": "sugar work"
    }
  }
]`

	drafts, err := commands.DecodeDrafts(payload, viralGroup())

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 2, drafts[0].ClipId)
	assert.Equal(t, "Sugar hits 170 and the whole kitchen goes quiet #AICDMX", drafts[0].Copy)
	require.NotNil(t, drafts[0].Metadata)
	assert.Equal(t, 7.9, drafts[0].Metadata.EngagementScore)
	assert.Equal(t, "high", drafts[0].Metadata.HookStrength)
	assert.Equal(t, []string{"sugar work"}, drafts[0].Metadata.PrimaryTopics)
}

// TestDecodeDraftsDropsUnrequestedClips verifies that drafts for clips the
// group never contained, and duplicate drafts for the same clip, are
// silently dropped.
func TestDecodeDraftsDropsUnrequestedClips(t *testing.T) {
	payload := `{
  "clips": [
    {"clipId": 2, "copy": "First caption for the clip #AICDMX"},
    {"clipId": 2, "copy": "Second caption for the same clip #AICDMX"},
    {"clipId": 41, "copy": "Caption for a clip from some other run #AICDMX"}
  ]
}`

	drafts, err := commands.DecodeDrafts(payload, viralGroup())

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 2, drafts[0].ClipId)
	assert.Equal(t, "First caption for the clip #AICDMX", drafts[0].Copy)
	// A draft without a metadata block decodes with nil metadata; the
	// validator fills it from zero values.
	assert.Nil(t, drafts[0].Metadata)
}

// TestDecodeDraftsUnparsablePayload verifies that a payload matching
// neither shape is a hard decode error. The generator reacts by dropping
// the group's drafts for the attempt and recording an issue, leaving the
// retry budget to recover the missing clips.
func TestDecodeDraftsUnparsablePayload(t *testing.T) {
	_, err := commands.DecodeDrafts("here are some catchy captions for you", viralGroup())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a clips envelope nor an array")
}
