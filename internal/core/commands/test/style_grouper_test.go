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

// groupingSegments builds the four-segment fixture used by the grouping
// tests.
func groupingSegments() []*model.ClipSegment {
	return []*model.ClipSegment{
		{Id: 1, TranscriptText: "knife cuts"},
		{Id: 2, TranscriptText: "sugar at 170 degrees"},
		{Id: 3, TranscriptText: "one recipe from Oaxaca"},
		{Id: 4, TranscriptText: "rest the dough twice"},
	}
}

// TestGroupByStyleEmitsFixedOrder verifies that groups come out in the
// fixed style order with each group's segments in input order, regardless
// of the order the classifications arrived in.
func TestGroupByStyleEmitsFixedOrder(t *testing.T) {
	classifications := []*model.ClassificationResult{
		{SegmentId: 3, Style: model.StyleStorytelling, Confidence: 0.86},
		{SegmentId: 1, Style: model.StyleEducational, Confidence: 0.88},
		{SegmentId: 4, Style: model.StyleEducational, Confidence: 0.81},
		{SegmentId: 2, Style: model.StyleViral, Confidence: 0.93},
	}

	groups, excluded := commands.GroupByStyle(groupingSegments(), classifications, model.StyleStorytelling, true)

	assert.Empty(t, excluded)
	require.Len(t, groups, 3)
	assert.Equal(t, model.StyleViral, groups[0].Style)
	assert.Equal(t, model.StyleEducational, groups[1].Style)
	assert.Equal(t, model.StyleStorytelling, groups[2].Style)

	// Segment order inside a group follows the input segment order.
	require.Len(t, groups[1].Segments, 2)
	assert.Equal(t, 1, groups[1].Segments[0].Id)
	assert.Equal(t, 4, groups[1].Segments[1].Id)
}

// TestGroupByStyleOmitsEmptyGroups verifies that a style without members
// produces no group at all, so generation never sees an empty batch.
func TestGroupByStyleOmitsEmptyGroups(t *testing.T) {
	classifications := []*model.ClassificationResult{
		{SegmentId: 1, Style: model.StyleViral},
		{SegmentId: 2, Style: model.StyleViral},
		{SegmentId: 3, Style: model.StyleViral},
		{SegmentId: 4, Style: model.StyleViral},
	}

	groups, excluded := commands.GroupByStyle(groupingSegments(), classifications, model.StyleStorytelling, true)

	assert.Empty(t, excluded)
	require.Len(t, groups, 1)
	assert.Equal(t, model.StyleViral, groups[0].Style)
	assert.Len(t, groups[0].Segments, 4)
}

// TestGroupByStyleFallbackEnabled verifies that segments without a
// classification join the configured fallback style, and that an
// unrecognizable fallback value resolves to the storytelling default.
func TestGroupByStyleFallbackEnabled(t *testing.T) {
	// Segments 3 and 4 never received a classification.
	classifications := []*model.ClassificationResult{
		{SegmentId: 1, Style: model.StyleEducational},
		{SegmentId: 2, Style: model.StyleViral},
	}

	groups, excluded := commands.GroupByStyle(groupingSegments(), classifications, model.StyleEducational, true)
	assert.Empty(t, excluded)
	require.Len(t, groups, 2)
	assert.Equal(t, model.StyleViral, groups[0].Style)
	assert.Equal(t, model.StyleEducational, groups[1].Style)
	assert.Len(t, groups[1].Segments, 3)

	// An unknown fallback style falls through to storytelling.
	groups, excluded = commands.GroupByStyle(groupingSegments(), classifications, "cinematic", true)
	assert.Empty(t, excluded)
	require.Len(t, groups, 3)
	assert.Equal(t, model.StyleStorytelling, groups[2].Style)
	assert.Len(t, groups[2].Segments, 2)
}

// TestGroupByStyleFallbackDisabled verifies that with fallback disabled,
// unclassified segments are excluded from every group and reported by id.
func TestGroupByStyleFallbackDisabled(t *testing.T) {
	classifications := []*model.ClassificationResult{
		{SegmentId: 1, Style: model.StyleEducational},
		{SegmentId: 2, Style: model.StyleViral},
	}

	groups, excluded := commands.GroupByStyle(groupingSegments(), classifications, model.StyleStorytelling, false)

	assert.Equal(t, []int{3, 4}, excluded)
	require.Len(t, groups, 2)
	for _, group := range groups {
		for _, segment := range group.Segments {
			assert.NotContains(t, []int{3, 4}, segment.Id)
		}
	}
}

// TestGroupByStyleFirstClassificationWins verifies that a duplicate
// classification for the same segment id is ignored, keeping the first
// verdict.
func TestGroupByStyleFirstClassificationWins(t *testing.T) {
	classifications := []*model.ClassificationResult{
		{SegmentId: 2, Style: model.StyleViral},
		{SegmentId: 2, Style: model.StyleEducational},
	}
	segments := []*model.ClipSegment{{Id: 2, TranscriptText: "sugar at 170 degrees"}}

	groups, excluded := commands.GroupByStyle(segments, classifications, model.StyleStorytelling, true)

	assert.Empty(t, excluded)
	require.Len(t, groups, 1)
	assert.Equal(t, model.StyleViral, groups[0].Style)
}

// TestGroupByStyleEmptyStyleIsUnclassified verifies that a classification
// whose style failed to normalize (recorded as an empty string) is treated
// the same as a missing classification.
func TestGroupByStyleEmptyStyleIsUnclassified(t *testing.T) {
	classifications := []*model.ClassificationResult{
		{SegmentId: 1, Style: ""},
	}
	segments := []*model.ClipSegment{{Id: 1, TranscriptText: "knife cuts"}}

	groups, excluded := commands.GroupByStyle(segments, classifications, model.StyleViral, true)
	assert.Empty(t, excluded)
	require.Len(t, groups, 1)
	assert.Equal(t, model.StyleViral, groups[0].Style)

	_, excluded = commands.GroupByStyle(segments, classifications, model.StyleViral, false)
	assert.Equal(t, []int{1}, excluded)
}
