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

// Package services_test contains the test suite for the services package.
// This file tests the query text the ReportService sends to BigQuery. The
// queries are plain format strings, so their shape can be verified without
// a live backend; the service methods themselves are exercised by the
// dashboard against a real dataset.
package services_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/services"
	"github.com/zeebo/assert"
)

// testTableFQN stands in for the fully qualified report table name that
// ReportService.GetFQN derives from its BigQuery client at runtime.
const testTableFQN = "clipforge-media.caption_ds.caption_reports"

// TestFindReportByIdQuery verifies the single-run lookup: filtered by
// correlation id and keeping only the newest row, since a redelivered
// trigger message can write the same id twice.
func TestFindReportByIdQuery(t *testing.T) {
	correlationId := "8c0e8cbd-55ae-5bf5-9a21-bd7261a27a09"
	queryText := fmt.Sprintf(services.QryFindReportById, testTableFQN, correlationId)

	assert.Equal(t,
		"SELECT * FROM `clipforge-media.caption_ds.caption_reports` WHERE correlation_id = '8c0e8cbd-55ae-5bf5-9a21-bd7261a27a09' ORDER BY generated_at DESC LIMIT 1",
		queryText)
}

// TestListReportsQuery verifies the dashboard listing query: newest first
// with the caller's row limit applied.
func TestListReportsQuery(t *testing.T) {
	queryText := fmt.Sprintf(services.QryListReports, testTableFQN, 20)

	assert.Equal(t,
		"SELECT * FROM `clipforge-media.caption_ds.caption_reports` ORDER BY generated_at DESC LIMIT 20",
		queryText)
}

// TestReportStatsQuery verifies the aggregate query feeding the dashboard
// tiles. The exact SELECT list matters less than the aliases, which must
// line up with the bigquery tags on model.ReportStats, and the IFNULL
// guards that keep an empty table scannable.
func TestReportStatsQuery(t *testing.T) {
	queryText := fmt.Sprintf(services.QryReportStats, testTableFQN)

	assert.True(t, strings.HasSuffix(queryText, "FROM `clipforge-media.caption_ds.caption_reports`"))
	assert.True(t, strings.Contains(queryText, "COUNT(*) as total_runs"))
	assert.True(t, strings.Contains(queryText, "COUNTIF(success) as successful_runs"))
	assert.True(t, strings.Contains(queryText, "IFNULL(ROUND(AVG(average_engagement), 2), 0) as average_engagement"))
	assert.True(t, strings.Contains(queryText, "IFNULL(ROUND(AVG(attempts), 2), 0) as average_attempts"))
}
