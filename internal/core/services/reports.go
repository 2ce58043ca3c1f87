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

// Package services contains the business logic for interacting with data
// sources. This file, `reports.go`, defines the ReportService, which reads
// caption run reports out of BigQuery and mints secure, time-limited URLs
// for the archived report documents in Google Cloud Storage (GCS).
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"google.golang.org/api/iterator"
)

// ReportService is a struct that encapsulates the clients and configuration
// needed to serve caption run reports. It acts as a data access layer,
// abstracting the details of interacting with BigQuery and GCS.
type ReportService struct {
	BigqueryClient *bigquery.Client                  // Client for interacting with Google BigQuery.
	StorageClient  *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient      *credentials.IamCredentialsClient // Client for interacting with IAM, used for signing URLs.
	SignerEmail    string                            // The service account email used to sign URLs.
	DatasetName    string                            // The name of the BigQuery dataset.
	ReportTable    string                            // The name of the table containing report rows.
	ReportBucket   string                            // The bucket holding the archived report documents.
}

// GetFQN (Get Fully Qualified Name) returns the complete, queryable name
// for the report table in BigQuery, formatted with dots instead of colons.
// Example: `gcp-project-id.captions_ds.caption_reports`
//
// Outputs:
//   - string: The fully qualified table name.
func (s *ReportService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.ReportTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Get retrieves the report row for a single run by its correlation id.
//
// Inputs:
//   - ctx: The context for the request, used for cancellation and tracing.
//   - correlationId: The id of the run to retrieve.
//
// Outputs:
//   - *model.ReportRow: A pointer to the retrieved row.
//   - error: An error if the query fails or no report is found.
func (s *ReportService) Get(ctx context.Context, correlationId string) (row *model.ReportRow, err error) {
	queryText := fmt.Sprintf(QryFindReportById, s.GetFQN(), correlationId)
	q := s.BigqueryClient.Query(queryText)
	itr, err := q.Read(ctx)
	if err != nil {
		return row, err
	}
	row = &model.ReportRow{}
	err = itr.Next(row)
	return row, err
}

// GetReport retrieves the full report document for a run. The complete
// document rides the row as a JSON column, so no second round trip to the
// archive bucket is needed.
//
// Inputs:
//   - ctx: The context for the request.
//   - correlationId: The id of the run to retrieve.
//
// Outputs:
//   - *model.FinalReport: The decoded report document.
//   - error: An error if the lookup fails or the stored JSON is unreadable.
func (s *ReportService) GetReport(ctx context.Context, correlationId string) (*model.FinalReport, error) {
	row, err := s.Get(ctx, correlationId)
	if err != nil {
		return nil, err
	}
	report := &model.FinalReport{}
	if err := json.Unmarshal([]byte(row.ReportJson), report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report %s: %w", correlationId, err)
	}
	return report, nil
}

// List retrieves the most recent report rows, newest first.
//
// Inputs:
//   - ctx: The context for the request.
//   - limit: The maximum number of rows to return.
//
// Outputs:
//   - []*model.ReportRow: The retrieved rows, possibly empty.
//   - error: An error if the query or row iteration fails.
func (s *ReportService) List(ctx context.Context, limit int) (out []*model.ReportRow, err error) {
	out = make([]*model.ReportRow, 0)
	if limit <= 0 {
		limit = 50
	}

	queryText := fmt.Sprintf(QryListReports, s.GetFQN(), limit)
	q := s.BigqueryClient.Query(queryText)
	itr, err := q.Read(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read from BigQuery: %w", err)
	}

	for {
		var r = &model.ReportRow{}
		err := itr.Next(r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Stats aggregates run outcomes across the whole report table.
//
// Inputs:
//   - ctx: The context for the request.
//
// Outputs:
//   - *model.ReportStats: The aggregate counters and averages.
//   - error: An error if the query fails.
func (s *ReportService) Stats(ctx context.Context) (stats *model.ReportStats, err error) {
	queryText := fmt.Sprintf(QryReportStats, s.GetFQN())
	q := s.BigqueryClient.Query(queryText)
	itr, err := q.Read(ctx)
	if err != nil {
		return stats, err
	}
	stats = &model.ReportStats{}
	err = itr.Next(stats)
	return stats, err
}

// GenerateArchiveURL creates a time-limited, secure URL for the archived
// report document of a run. This lets dashboard clients download the full
// JSON directly from GCS without their own credentials. The URL is signed
// through the IAM Credentials API using the configured signer service
// account, so no private key ships with the server.
//
// Inputs:
//   - ctx: The context for the request.
//   - correlationId: The run whose archive object to link.
//   - expires: The duration for which the URL will be valid.
//
// Outputs:
//   - string: The generated V4 signed URL.
//   - error: An error if the signing call fails.
func (s *ReportService) GenerateArchiveURL(ctx context.Context, correlationId string, expires time.Duration) (string, error) {
	objectName := fmt.Sprintf("%s.json", correlationId)

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: s.SignerEmail,
		Expires:        time.Now().Add(expires),
		SignBytes: func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			}
			resp, err := s.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		},
	}

	u, err := s.StorageClient.Bucket(s.ReportBucket).SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).Object(%q).SignedURL: %w", s.ReportBucket, objectName, err)
	}
	return u, nil
}
