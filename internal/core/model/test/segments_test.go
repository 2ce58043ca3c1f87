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

// Package model_test contains unit tests for the data models defined in the
// model package. This file tests the input-side types: style normalization
// and the canonical segment ordering every downstream stage relies on.
package model_test

import (
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeStyle verifies style repair: exact matches, case folding,
// decorated labels resolved by substring, and the empty result that marks a
// segment as unclassified.
func TestNormalizeStyle(t *testing.T) {
	assert.Equal(t, model.StyleViral, model.NormalizeStyle("viral"))
	assert.Equal(t, model.StyleEducational, model.NormalizeStyle("  EDUCATIONAL "))
	assert.Equal(t, model.StyleViral, model.NormalizeStyle("Viral Hook"))
	assert.Equal(t, model.StyleStorytelling, model.NormalizeStyle("a storytelling style"))
	assert.Equal(t, "", model.NormalizeStyle("poetic"))
	assert.Equal(t, "", model.NormalizeStyle(""))
}

// TestAllStylesOrder verifies the canonical emission order. Group ordering,
// distribution counts, and report layout all depend on this order staying
// stable.
func TestAllStylesOrder(t *testing.T) {
	assert.Equal(t, []string{model.StyleViral, model.StyleEducational, model.StyleStorytelling}, model.AllStyles())
}

// TestStyleDirectives verifies that every canonical style carries its own
// directive and that an unknown style still resolves to usable prompt text.
func TestStyleDirectives(t *testing.T) {
	seen := make(map[string]bool)
	for _, style := range model.AllStyles() {
		directive := model.StyleDirective(style)
		assert.NotEmpty(t, directive)
		assert.False(t, seen[directive], "directive for %q duplicates another style's", style)
		seen[directive] = true
	}
	assert.NotEmpty(t, model.StyleDirective("something else"))
}

// TestSortSegments verifies the canonical ordering contract: ascending by
// id, nil entries dropped, and the first occurrence winning on duplicate
// ids.
func TestSortSegments(t *testing.T) {
	segments := []*model.ClipSegment{
		{Id: 3, TranscriptText: "third"},
		nil,
		{Id: 1, TranscriptText: "first"},
		{Id: 3, TranscriptText: "third again"},
		{Id: 2, TranscriptText: "second"},
	}

	sorted := model.SortSegments(segments)

	require.Len(t, sorted, 3)
	assert.Equal(t, 1, sorted[0].Id)
	assert.Equal(t, 2, sorted[1].Id)
	assert.Equal(t, 3, sorted[2].Id)
	// The duplicate kept the first occurrence's transcript.
	assert.Equal(t, "third", sorted[2].TranscriptText)
}

// TestSortSegmentsEmpty verifies that empty input yields an initialized,
// empty slice rather than nil, since the loader stores the result directly
// into the chain context.
func TestSortSegmentsEmpty(t *testing.T) {
	sorted := model.SortSegments(nil)
	assert.NotNil(t, sorted)
	assert.Len(t, sorted, 0)
}
