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

// Package services contains the business logic for interacting with data sources.
// This file, `queries.go`, centralizes all the BigQuery SQL query strings used
// by the application's services. Storing queries as constants in a dedicated
// file improves maintainability, readability, and reusability. The queries use
// `fmt.Sprintf` format verbs (e.g., %s, %d) as placeholders for dynamic values
// that will be injected at runtime.
package services

const (
	// QryFindReportById retrieves the report row for one run by its
	// correlation id.
	//
	// A redelivered trigger message can write the same correlation id more
	// than once, so the query orders by generation time and keeps the
	// newest row.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the report table.
	// - `%s`: The correlation id of the run to find.
	QryFindReportById = "SELECT * FROM `%s` WHERE correlation_id = '%s' ORDER BY generated_at DESC LIMIT 1"

	// QryListReports retrieves the most recent report rows for the
	// dashboard's run list, newest first.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the report table.
	// - `%d`: The maximum number of rows to return.
	QryListReports = "SELECT * FROM `%s` ORDER BY generated_at DESC LIMIT %d"

	// QryReportStats aggregates run outcomes across the whole report table:
	// how many runs completed, how many succeeded, and the mean engagement
	// and attempt counts. The IFNULL guards keep the aggregates scannable
	// when the table is empty.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the report table.
	QryReportStats = "SELECT COUNT(*) as total_runs, COUNTIF(success) as successful_runs, IFNULL(ROUND(AVG(average_engagement), 2), 0) as average_engagement, IFNULL(ROUND(AVG(attempts), 2), 0) as average_attempts FROM `%s`"
)
