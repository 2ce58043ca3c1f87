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

package commands

import (
	"fmt"
	"log"

	"cloud.google.com/go/bigquery"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// ReportPersistToBigQuery is a command that flattens the final report into
// a row and streams it into the report table, where the dashboard queries
// it.
type ReportPersistToBigQuery struct {
	cor.BaseCommand
	bigqueryClient *bigquery.Client
	datasetName    string
	tableName      string
	reportParam    string // The context parameter holding the final report.
}

// NewReportPersistToBigQuery is the constructor for the
// ReportPersistToBigQuery command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - bigqueryClient: An initialized BigQuery client.
//   - datasetName: The dataset holding the report table.
//   - tableName: The report table name.
//   - reportParam: The context parameter name for the final report.
//
// Outputs:
//   - *ReportPersistToBigQuery: A pointer to the newly instantiated command.
func NewReportPersistToBigQuery(
	name string,
	bigqueryClient *bigquery.Client,
	datasetName string,
	tableName string,
	reportParam string) *ReportPersistToBigQuery {
	return &ReportPersistToBigQuery{
		BaseCommand:    *cor.NewBaseCommand(name),
		bigqueryClient: bigqueryClient,
		datasetName:    datasetName,
		tableName:      tableName,
		reportParam:    reportParam,
	}
}

// IsExecutable ensures the final report is present before attempting the
// insert.
func (b *ReportPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return context.Get(b.reportParam) != nil
}

// Execute flattens the report and streams it into BigQuery. An insert
// failure fails the chain so the triggering message is redelivered and the
// row is written on a later attempt.
func (b *ReportPersistToBigQuery) Execute(context cor.Context) {
	report := context.Get(b.reportParam).(*model.FinalReport)

	row, err := model.NewReportRow(report)
	if err != nil {
		b.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(b.GetName(), fmt.Errorf("failed to flatten report %s: %w", report.CorrelationId, err))
		return
	}

	inserter := b.bigqueryClient.Dataset(b.datasetName).Table(b.tableName).Inserter()
	if err := inserter.Put(context.GetContext(), row); err != nil {
		b.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(b.GetName(), fmt.Errorf("failed to insert report %s: %w", report.CorrelationId, err))
		return
	}

	log.Printf("persisted report %s to %s.%s", report.CorrelationId, b.datasetName, b.tableName)
	b.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(b.GetOutputParam(), report)
}
