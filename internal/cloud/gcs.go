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

// Package cloud contains data structures and utilities for interacting
// with Google Cloud services. This file holds the Cloud Storage helpers
// used by the pipeline: a lightweight object locator passed between
// commands, and small read/write helpers for the JSON documents the
// pipeline exchanges through GCS (segment manifests in, archived reports
// out).
//
// Structs:
//   - GCSObject: A simplified internal model for GCS objects used in
//     processing workflows.
//
// Functions:
//   - GetGCSObjectName: Returns the context key GCSObject values travel under.
//   - ReadObject: Reads a whole GCS object into memory.
//   - WriteJSONObject: Writes a JSON document to a GCS object.
package cloud

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GetGCSObjectName returns a constant string that is used as a key within
// the Chain of Responsibility (CoR) context. This key allows different
// commands in a workflow to consistently access the `GCSObject` being
// processed, currently the segment manifest a caption request points at.
//
// Outputs:
//   - string: A constant placeholder string "__GCS__OBJ__".
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSObject is a simplified, internal representation of a Google Cloud
// Storage (GCS) object. It carries just the coordinates a command needs to
// read or write the object, without the verbose notification metadata.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g. "application/json").
}

// ObjectReader abstracts whole-object reads so commands that consume
// manifests do not need a live storage client. Tests substitute in-memory
// implementations.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket string, object string) ([]byte, error)
}

// GCSObjectReader is the production ObjectReader backed by a storage
// client.
type GCSObjectReader struct {
	Client *storage.Client
}

// ReadObject reads the named object through the underlying storage client.
func (r *GCSObjectReader) ReadObject(ctx context.Context, bucket string, object string) ([]byte, error) {
	return ReadObject(ctx, r.Client, bucket, object)
}

// ReadObject reads the full contents of a GCS object into memory. The
// documents this pipeline reads are segment manifests of at most a few
// hundred kilobytes, so buffering the whole object is fine.
//
// Inputs:
//   - ctx: The context for the read.
//   - client: An authenticated storage client.
//   - bucket: The bucket holding the object.
//   - object: The object name.
//
// Outputs:
//   - []byte: The object contents.
//   - error: A wrapped error if the object cannot be opened or read.
func ReadObject(ctx context.Context, client *storage.Client, bucket string, object string) ([]byte, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer func(reader *storage.Reader) {
		_ = reader.Close()
	}(reader)

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// WriteJSONObject writes a JSON document to the given GCS object,
// overwriting any previous generation.
//
// Inputs:
//   - ctx: The context for the write.
//   - client: An authenticated storage client.
//   - bucket: The destination bucket.
//   - object: The destination object name.
//   - data: The JSON payload to store.
//
// Outputs:
//   - error: A wrapped error if the write or the final close fails. The
//     close error matters: GCS commits the object on Close.
func WriteJSONObject(ctx context.Context, client *storage.Client, bucket string, object string, data []byte) error {
	writer := client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}
