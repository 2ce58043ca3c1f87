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

const lowScoreFloor = 6.5

// scoredCopy builds a minimal valid copy with the given quality signals.
func scoredCopy(clipId int, engagement float64, viral float64, hook string, flags ...string) *model.GeneratedCopy {
	return &model.GeneratedCopy{
		ClipId: clipId,
		Copy:   "A caption long enough to have survived validation #AICDMX",
		Style:  model.StyleViral,
		Metadata: &model.CopyMetadata{
			Sentiment:       model.SentimentHumorous,
			EngagementScore: engagement,
			HookStrength:    hook,
			ViralPotential:  viral,
		},
		ValidationFlags: flags,
	}
}

// TestComputeQualityMeans verifies the two averages are computed over the
// whole copy set and rounded to two decimal places.
func TestComputeQualityMeans(t *testing.T) {
	copies := []*model.GeneratedCopy{
		scoredCopy(1, 7.9, 7.0, model.HookHigh),
		scoredCopy(2, 8.4, 8.0, model.HookVeryHigh),
		scoredCopy(3, 8.1, 8.0, model.HookHigh),
		scoredCopy(4, 7.6, 7.0, model.HookHigh),
	}

	metrics, issues := commands.ComputeQuality(copies, lowScoreFloor)

	assert.Empty(t, issues)
	require.NotNil(t, metrics)
	assert.Equal(t, 8.0, metrics.AverageEngagement)
	assert.Equal(t, 7.5, metrics.AverageViralPotential)
	// Every copy scored above the floor, so no clip is diagnosed.
	assert.Empty(t, metrics.PerSegmentIssues)
}

// TestComputeQualityEmptySet verifies that an empty copy set is a finding,
// not an error: zero means plus an explanatory issue.
func TestComputeQualityEmptySet(t *testing.T) {
	metrics, issues := commands.ComputeQuality(nil, lowScoreFloor)

	require.NotNil(t, metrics)
	assert.Equal(t, 0.0, metrics.AverageEngagement)
	assert.Equal(t, 0.0, metrics.AverageViralPotential)
	assert.Equal(t, []string{"no valid copies to analyze"}, issues)
}

// TestComputeQualityDiagnosesLowScorers verifies the per-clip diagnosis
// order for copies under the engagement floor: a low hook strength reads as
// a weak hook, then a truncation flag as over-length, then a topics flag as
// generic topics, with weak hooks as the final default.
func TestComputeQualityDiagnosesLowScorers(t *testing.T) {
	copies := []*model.GeneratedCopy{
		scoredCopy(1, 5.0, 5.0, model.HookLow),
		scoredCopy(2, 6.0, 6.0, model.HookMedium, model.FlagTruncated),
		scoredCopy(3, 6.2, 6.0, model.HookHigh, model.FlagTooFewTopics),
		scoredCopy(4, 6.4, 6.0, model.HookHigh),
		scoredCopy(5, 9.0, 9.0, model.HookVeryHigh),
	}

	metrics, issues := commands.ComputeQuality(copies, lowScoreFloor)

	assert.Empty(t, issues)
	require.NotNil(t, metrics)
	require.Len(t, metrics.PerSegmentIssues, 4)
	assert.Equal(t, model.IssueWeakHooks, metrics.PerSegmentIssues[1])
	assert.Equal(t, model.IssueOverLength, metrics.PerSegmentIssues[2])
	assert.Equal(t, model.IssueGenericTopics, metrics.PerSegmentIssues[3])
	assert.Equal(t, model.IssueWeakHooks, metrics.PerSegmentIssues[4])
	// The copy above the floor is not diagnosed.
	_, flagged := metrics.PerSegmentIssues[5]
	assert.False(t, flagged)
}

// TestComputeQualityHookOutranksFlags verifies that a low hook strength
// wins the diagnosis even when repair flags are also present, since
// engagement is hook-driven.
func TestComputeQualityHookOutranksFlags(t *testing.T) {
	copies := []*model.GeneratedCopy{
		scoredCopy(1, 5.5, 5.0, model.HookLow, model.FlagTruncated, model.FlagTooFewTopics),
	}

	metrics, _ := commands.ComputeQuality(copies, lowScoreFloor)

	require.NotNil(t, metrics)
	assert.Equal(t, model.IssueWeakHooks, metrics.PerSegmentIssues[1])
}
