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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// initial command in the caption pipeline.
//
// Logic Flow:
// This command is the entry point for every pipeline run. A caption request
// arrives as a JSON message on the request topic, pointing at a segment
// manifest in Cloud Storage. This command parses and validates that message.
//
//  1. The raw Pub/Sub message body arrives as a JSON string in the context.
//  2. It is unmarshaled into a `model.CaptionRequest`.
//  3. The manifest coordinates are checked; a request without them cannot be
//     processed and fails the chain (the message eventually dead-letters).
//  4. A missing correlation id is filled in deterministically from the
//     manifest object name, so a redelivered message keeps the same report
//     identity instead of minting a new one.
//  5. The request and a `cloud.GCSObject` locator for the manifest are placed
//     into the context under well-known keys for the commands downstream.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetCaptionRequestParamName returns the well-known context key the parsed
// caption request travels under for the rest of the run.
//
// Outputs:
//   - string: A constant placeholder string "__CAPTION_REQUEST__".
func GetCaptionRequestParamName() string {
	return "__CAPTION_REQUEST__"
}

// RequestTriggerReader is a command that parses the raw caption request
// message and derives the manifest location and correlation id for the run.
type RequestTriggerReader struct {
	cor.BaseCommand // Embeds the BaseCommand for common functionality.
}

// NewRequestTriggerReader is the constructor for the RequestTriggerReader
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//
// Outputs:
//   - *RequestTriggerReader: A pointer to the newly instantiated command.
func NewRequestTriggerReader(name string) *RequestTriggerReader {
	return &RequestTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute contains the core logic for parsing the caption request message.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution,
//     containing the raw message data in the input parameter.
func (c *RequestTriggerReader) Execute(context cor.Context) {
	// Retrieve the raw JSON message string from the context.
	in := context.Get(c.GetInputParam()).(string)

	var msg model.CaptionRequest
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal caption request: %w", err))
		return
	}

	// A request that does not say where its manifest lives cannot be
	// processed at all.
	if msg.ManifestBucket == "" || msg.ManifestObject == "" {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("caption request is missing manifest coordinates: bucket=%q object=%q", msg.ManifestBucket, msg.ManifestObject))
		return
	}

	// Derive a stable correlation id when the caller did not supply one.
	// Deriving it from the object name keeps redeliveries idempotent.
	if msg.CorrelationId == "" {
		msg.CorrelationId = model.NewCorrelationId(msg.ManifestObject)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)

	// Publish the parsed request and the manifest locator under well-known
	// keys so any downstream command can reach them without re-parsing.
	context.Add(GetCaptionRequestParamName(), &msg)
	context.Add(cloud.GetGCSObjectName(), &cloud.GCSObject{
		Bucket:   msg.ManifestBucket,
		Name:     msg.ManifestObject,
		MIMEType: "application/json",
	})
	context.Add(c.GetOutputParam(), &msg)
}
