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
// This file, `report.go`, contains the output artifact of a pipeline run:
// the final report handed to persistence, the BigQuery row shape it is
// stored as, and the completion event published when a run finishes.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportStyleAutoClassified is the value of FinalReport.Style when copies
// were generated per-segment from classified styles rather than with a
// single caller-chosen style.
const ReportStyleAutoClassified = "auto-classified"

// ClassificationMetadata summarizes the classifier stage in the final
// report. Distribution always carries an entry for every canonical style,
// including zero counts, so consumers can chart it without key checks.
type ClassificationMetadata struct {
	Classifications []*ClassificationResult `json:"classifications"`
	Distribution    map[string]int          `json:"distribution"`
	Coverage        float64                 `json:"coverage"` // Fraction of input segments that received a classification.
}

// GenerationMetadata records how complete the copy set is relative to the
// input segment list. MissingClips lists the segment ids that ended the
// run with no valid copy, sorted ascending.
type GenerationMetadata struct {
	Incomplete     bool  `json:"incomplete"`
	TotalClips     int   `json:"totalClips"`
	GeneratedClips int   `json:"generatedClips"`
	MissingClips   []int `json:"missingClips"`
}

// QualitySummary is the accepted attempt's aggregate metrics plus the
// number of generation attempts the run consumed.
type QualitySummary struct {
	AverageEngagement     float64 `json:"averageEngagement"`
	AverageViralPotential float64 `json:"averageViralPotential"`
	Attempts              int     `json:"attempts"`
}

// FinalReport is the output artifact of one pipeline run. Success means
// at least one valid copy exists; a run that missed the quality gate but
// still produced copies is a partial success, never a failure.
type FinalReport struct {
	CorrelationId          string                  `json:"correlationId"`
	GeneratedAt            string                  `json:"generatedAt"` // ISO-8601 UTC.
	ModelIdentifier        string                  `json:"modelIdentifier"`
	Style                  string                  `json:"style"`
	Success                bool                    `json:"success"`
	TotalClips             int                     `json:"totalClips"`
	Clips                  []*GeneratedCopy        `json:"clips"`
	ClassificationMetadata *ClassificationMetadata `json:"classificationMetadata,omitempty"`
	GenerationMetadata     *GenerationMetadata     `json:"generationMetadata,omitempty"`
	Quality                *QualitySummary         `json:"quality,omitempty"`
	Issues                 []string                `json:"issues,omitempty"`
	Logs                   []string                `json:"logs,omitempty"`
}

// NewFinalReport creates an empty report shell for the given run with all
// slices initialized to be non-nil.
//
// Inputs:
//   - correlationId: the id threading the run end to end.
//   - modelIdentifier: the generator model the run used.
//
// Outputs:
//   - *FinalReport: a report with zero clips and auto-classified style.
func NewFinalReport(correlationId string, modelIdentifier string) *FinalReport {
	return &FinalReport{
		CorrelationId:   correlationId,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		ModelIdentifier: modelIdentifier,
		Style:           ReportStyleAutoClassified,
		Clips:           make([]*GeneratedCopy, 0),
		Issues:          make([]string, 0),
		Logs:            make([]string, 0),
	}
}

// NewCorrelationId derives a deterministic correlation id from a seed,
// typically the manifest object name. Using a SHA1 UUID keeps redelivered
// trigger messages from minting a second report identity for the same
// manifest.
func NewCorrelationId(seed string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// CompletionEvent is the lightweight message published to the completion
// topic when a run finishes, successfully or not.
type CompletionEvent struct {
	CorrelationId     string  `json:"correlation_id"`
	Success           bool    `json:"success"`
	TotalClips        int     `json:"total_clips"`
	GeneratedClips    int     `json:"generated_clips"`
	AverageEngagement float64 `json:"average_engagement"`
}

// NewCompletionEvent projects a final report onto the completion message.
func NewCompletionEvent(report *FinalReport) *CompletionEvent {
	out := &CompletionEvent{
		CorrelationId: report.CorrelationId,
		Success:       report.Success,
		TotalClips:    report.TotalClips,
	}
	if report.GenerationMetadata != nil {
		out.GeneratedClips = report.GenerationMetadata.GeneratedClips
	}
	if report.Quality != nil {
		out.AverageEngagement = report.Quality.AverageEngagement
	}
	return out
}

// ReportRow is the BigQuery representation of a final report: the scalar
// columns callers filter and order by, plus the full report serialized as
// JSON. Keeping the nested document in one JSON column avoids a repeated
// schema migration every time the report shape grows a field.
type ReportRow struct {
	CorrelationId         string    `bigquery:"correlation_id" json:"correlation_id"`
	GeneratedAt           time.Time `bigquery:"generated_at" json:"generated_at"`
	ModelIdentifier       string    `bigquery:"model_identifier" json:"model_identifier"`
	Success               bool      `bigquery:"success" json:"success"`
	TotalClips            int       `bigquery:"total_clips" json:"total_clips"`
	GeneratedClips        int       `bigquery:"generated_clips" json:"generated_clips"`
	AverageEngagement     float64   `bigquery:"average_engagement" json:"average_engagement"`
	AverageViralPotential float64   `bigquery:"average_viral_potential" json:"average_viral_potential"`
	Attempts              int       `bigquery:"attempts" json:"attempts"`
	ReportJson            string    `bigquery:"report_json" json:"report_json"`
}

// NewReportRow flattens a final report into its BigQuery row.
//
// Inputs:
//   - report: the assembled final report.
//
// Outputs:
//   - *ReportRow: the row ready for an inserter Put.
//   - error: a JSON marshaling failure, which should never happen for a
//     report assembled by this package.
func NewReportRow(report *FinalReport) (*ReportRow, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	generatedAt, err := time.Parse(time.RFC3339, report.GeneratedAt)
	if err != nil {
		generatedAt = time.Now().UTC()
	}
	row := &ReportRow{
		CorrelationId:   report.CorrelationId,
		GeneratedAt:     generatedAt,
		ModelIdentifier: report.ModelIdentifier,
		Success:         report.Success,
		TotalClips:      report.TotalClips,
		ReportJson:      string(payload),
	}
	if report.GenerationMetadata != nil {
		row.GeneratedClips = report.GenerationMetadata.GeneratedClips
	}
	if report.Quality != nil {
		row.AverageEngagement = report.Quality.AverageEngagement
		row.AverageViralPotential = report.Quality.AverageViralPotential
		row.Attempts = report.Quality.Attempts
	}
	return row, nil
}

// ReportStats aggregates run outcomes across the report table for the
// dashboard's summary tiles.
type ReportStats struct {
	TotalRuns         int64   `bigquery:"total_runs" json:"totalRuns"`
	SuccessfulRuns    int64   `bigquery:"successful_runs" json:"successfulRuns"`
	AverageEngagement float64 `bigquery:"average_engagement" json:"averageEngagement"`
	AverageAttempts   float64 `bigquery:"average_attempts" json:"averageAttempts"`
}
