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

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetSegmentsParamName returns the well-known context key holding the ordered
// clip segments for the current run.
//
// Outputs:
//   - string: A constant placeholder string "__SEGMENTS__".
func GetSegmentsParamName() string {
	return "__SEGMENTS__"
}

// ManifestLoader is a command that downloads the segment manifest from Cloud
// Storage and turns it into the ordered, de-duplicated segment list the rest
// of the pipeline works from.
//
// Logic Flow:
//  1. Read the manifest object named by the caption request.
//  2. Unmarshal it into a `model.SegmentManifest`.
//  3. Sort segments by id, dropping nil entries and duplicate ids.
//  4. Clamp negative durations to zero so downstream timestamp clamping has a
//     sane upper bound.
//  5. An empty manifest is NOT an error. The run still produces a report, so
//     the loader records an "empty input" issue and hands an empty segment
//     list to the workflow, which skips generation entirely.
type ManifestLoader struct {
	cor.BaseCommand
	objectReader cloud.ObjectReader // Reads the manifest object, GCS-backed in production.
}

// NewManifestLoader is the constructor for the ManifestLoader command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - objectReader: The reader used to fetch the manifest object.
//
// Outputs:
//   - *ManifestLoader: A pointer to the newly instantiated command.
func NewManifestLoader(name string, objectReader cloud.ObjectReader) *ManifestLoader {
	return &ManifestLoader{
		BaseCommand:  *cor.NewBaseCommand(name),
		objectReader: objectReader,
	}
}

// Execute downloads and normalizes the segment manifest.
func (c *ManifestLoader) Execute(context cor.Context) {
	msg := context.Get(c.GetInputParam()).(*model.CaptionRequest)

	data, err := c.objectReader.ReadObject(context.GetContext(), msg.ManifestBucket, msg.ManifestObject)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	var manifest model.SegmentManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal manifest gs://%s/%s: %w", msg.ManifestBucket, msg.ManifestObject, err))
		return
	}

	segments := model.SortSegments(manifest.Segments)
	for _, segment := range segments {
		if segment.DurationSeconds < 0 {
			segment.DurationSeconds = 0
		}
	}

	if len(segments) == 0 {
		log.Printf("manifest gs://%s/%s has no segments, run %s will report empty input",
			msg.ManifestBucket, msg.ManifestObject, msg.CorrelationId)
		AddIssue(context, "empty input")
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetSegmentsParamName(), segments)
	context.Add(c.GetOutputParam(), segments)
}
