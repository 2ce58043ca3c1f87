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
	"encoding/json"
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// ReportArchiveToGCS is a command that writes the full report JSON to the
// archive bucket. BigQuery holds the flattened row for queries; the archive
// object is the complete document, keyed by correlation id, that the
// dashboard's download link serves.
type ReportArchiveToGCS struct {
	cor.BaseCommand
	storageClient *storage.Client
	bucketName    string
	reportParam   string // The context parameter holding the final report.
}

// NewReportArchiveToGCS is the constructor for the ReportArchiveToGCS
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - storageClient: An initialized Google Cloud Storage client.
//   - bucketName: The archive bucket name.
//   - reportParam: The context parameter name for the final report.
//
// Outputs:
//   - *ReportArchiveToGCS: A pointer to the newly instantiated command.
func NewReportArchiveToGCS(
	name string,
	storageClient *storage.Client,
	bucketName string,
	reportParam string) *ReportArchiveToGCS {
	return &ReportArchiveToGCS{
		BaseCommand:   *cor.NewBaseCommand(name),
		storageClient: storageClient,
		bucketName:    bucketName,
		reportParam:   reportParam,
	}
}

// IsExecutable ensures the final report is present before writing.
func (c *ReportArchiveToGCS) IsExecutable(context cor.Context) bool {
	return context.Get(c.reportParam) != nil
}

// Execute serializes the report and writes it to the archive bucket as
// "<correlation id>.json". Redeliveries overwrite the same object, so the
// archive stays one document per run.
func (c *ReportArchiveToGCS) Execute(context cor.Context) {
	report := context.Get(c.reportParam).(*model.FinalReport)

	data, err := json.Marshal(report)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to serialize report %s: %w", report.CorrelationId, err))
		return
	}

	objectName := fmt.Sprintf("%s.json", report.CorrelationId)
	if err := cloud.WriteJSONObject(context.GetContext(), c.storageClient, c.bucketName, objectName, data); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	log.Printf("archived report gs://%s/%s", c.bucketName, objectName)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), report)
}
