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

// Package model_test - This file tests the report-side types: the final
// report constructor, the deterministic correlation id, the BigQuery row
// flattening, and the completion event projection.
package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewCorrelationId verifies that the correlation id is the UUIDv5 hash
// of the seed, so a redelivered trigger message for the same manifest maps
// onto the same report identity.
func TestNewCorrelationId(t *testing.T) {
	seed := "test-manifest-001.json"
	id := model.NewCorrelationId(seed)

	// Recompute the same UUIDv5 hash the function is expected to produce,
	// using the URL namespace and the seed as the input byte slice.
	expected := uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed))
	assert.Equal(t, expected.String(), id)

	// Deterministic for the same seed, distinct across seeds.
	assert.Equal(t, id, model.NewCorrelationId(seed))
	assert.NotEqual(t, id, model.NewCorrelationId("another-manifest.json"))
}

// TestNewFinalReport tests the constructor for the FinalReport struct. It
// verifies the identity fields, that the style marker reports classified
// generation, that the timestamp is current UTC in RFC3339, and that the
// slice fields are initialized as empty slices.
func TestNewFinalReport(t *testing.T) {
	report := model.NewFinalReport("run-1", "gemini-2.5-flash")

	assert.Equal(t, "run-1", report.CorrelationId)
	assert.Equal(t, "gemini-2.5-flash", report.ModelIdentifier)
	assert.Equal(t, model.ReportStyleAutoClassified, report.Style)
	assert.False(t, report.Success)

	generatedAt, err := time.Parse(time.RFC3339, report.GeneratedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), generatedAt, 2*time.Second)

	assert.NotNil(t, report.Clips)
	assert.Equal(t, 0, len(report.Clips))
	assert.Equal(t, 0, len(report.Issues))
	assert.Equal(t, 0, len(report.Logs))
}

// sampleReport builds a populated report for the flattening tests.
func sampleReport() *model.FinalReport {
	report := model.NewFinalReport("run-2", "gemini-2.5-flash")
	report.Success = true
	report.TotalClips = 4
	report.Clips = []*model.GeneratedCopy{
		{ClipId: 1, Copy: "First caption #AICDMX", Style: model.StyleEducational},
		{ClipId: 2, Copy: "Second caption #AICDMX", Style: model.StyleViral},
	}
	report.GenerationMetadata = &model.GenerationMetadata{
		Incomplete:     true,
		TotalClips:     4,
		GeneratedClips: 2,
		MissingClips:   []int{3, 4},
	}
	report.Quality = &model.QualitySummary{
		AverageEngagement:     8.15,
		AverageViralPotential: 7.8,
		Attempts:              2,
	}
	return report
}

// TestNewReportRow verifies the BigQuery flattening: the scalar columns
// callers filter on are lifted out of the report and the full document
// round-trips through the JSON column.
func TestNewReportRow(t *testing.T) {
	report := sampleReport()

	row, err := model.NewReportRow(report)

	require.NoError(t, err)
	assert.Equal(t, "run-2", row.CorrelationId)
	assert.Equal(t, "gemini-2.5-flash", row.ModelIdentifier)
	assert.True(t, row.Success)
	assert.Equal(t, 4, row.TotalClips)
	assert.Equal(t, 2, row.GeneratedClips)
	assert.Equal(t, 8.15, row.AverageEngagement)
	assert.Equal(t, 7.8, row.AverageViralPotential)
	assert.Equal(t, 2, row.Attempts)

	parsedAt, err := time.Parse(time.RFC3339, report.GeneratedAt)
	require.NoError(t, err)
	assert.True(t, row.GeneratedAt.Equal(parsedAt))

	// The JSON column carries the full document.
	var restored model.FinalReport
	require.NoError(t, json.Unmarshal([]byte(row.ReportJson), &restored))
	assert.Equal(t, report.CorrelationId, restored.CorrelationId)
	require.Len(t, restored.Clips, 2)
	assert.Equal(t, "First caption #AICDMX", restored.Clips[0].Copy)
	require.NotNil(t, restored.GenerationMetadata)
	assert.Equal(t, []int{3, 4}, restored.GenerationMetadata.MissingClips)
}

// TestNewReportRowMinimalReport verifies that a report without generation
// or quality blocks flattens with zero values instead of failing.
func TestNewReportRowMinimalReport(t *testing.T) {
	row, err := model.NewReportRow(model.NewFinalReport("run-3", "gemini-2.5-flash"))

	require.NoError(t, err)
	assert.Equal(t, 0, row.GeneratedClips)
	assert.Equal(t, 0.0, row.AverageEngagement)
	assert.Equal(t, 0, row.Attempts)
}

// TestNewCompletionEvent verifies the completion message projection,
// including the guarded reads of the optional report blocks.
func TestNewCompletionEvent(t *testing.T) {
	event := model.NewCompletionEvent(sampleReport())
	assert.Equal(t, "run-2", event.CorrelationId)
	assert.True(t, event.Success)
	assert.Equal(t, 4, event.TotalClips)
	assert.Equal(t, 2, event.GeneratedClips)
	assert.Equal(t, 8.15, event.AverageEngagement)

	// A failure report with no optional blocks projects zero values.
	event = model.NewCompletionEvent(model.NewFinalReport("run-4", "gemini-2.5-flash"))
	assert.Equal(t, "run-4", event.CorrelationId)
	assert.False(t, event.Success)
	assert.Equal(t, 0, event.GeneratedClips)
	assert.Equal(t, 0.0, event.AverageEngagement)
}
