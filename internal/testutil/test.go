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

// Package test provides utility functions, scripted fakes, and mock data to
// support the application's test suite. It helps in setting up a consistent
// test environment, loading test-specific configurations, and providing
// sample caption requests and segment manifests for workflow tests.
//
// The scripted fakes stand in for the two external surfaces the pipeline
// touches during a run: the generative model (ScriptedContentGenerator) and
// the manifest bucket (MemoryObjectReader). With both in place a complete
// pipeline run executes hermetically.
package test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"google.golang.org/genai"
)

// StateManager acts as a simple in-memory cache for the application configuration
// during test runs. This prevents the need to reload configuration files for every
// test, speeding up the test suite.
type StateManager struct {
	config *cloud.Config
}

// state is a package-level variable that holds the singleton instance of StateManager,
// ensuring that the configuration is loaded only once per test run.
var state = &StateManager{}

// HandleErr is a simple test helper function that checks if an error is not nil.
// If an error exists, it fails the test immediately by calling t.Errorf.
// This is a convenience function to reduce boilerplate error-checking code in tests.
//
// Inputs:
//   - err: The error to check.
//   - t: The *testing.T object from the current test.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestCaptionRequestText returns a hardcoded JSON string that simulates a
// caption request message published to the request topic. The request names
// the manifest object served by the MemoryObjectReader in the workflow tests
// and deliberately omits the correlation id, exercising the deterministic id
// derivation in the trigger reader.
//
// Returns:
//   - A string containing the JSON payload of a caption request.
func GetTestCaptionRequestText() string {
	return `{
  "manifest_bucket": "caption_manifest_resources",
  "manifest_object": "test-manifest-001.json"
}`
}

// GetTestManifestText returns a hardcoded JSON segment manifest with four
// clip segments. The transcripts are written so that a scripted classifier
// can plausibly spread them across the three caption styles, and the ids are
// intentionally out of order to exercise the canonical sort in the loader.
//
// Returns:
//   - A string containing the JSON payload of a segment manifest.
func GetTestManifestText() string {
	return `{
  "sourceId": "creator-episode-042",
  "segments": [
    {
      "id": 2,
      "transcriptText": "Nobody believed a home cook could pull this off, but watch what happens when the sugar hits 170 degrees.",
      "durationSeconds": 31.5
    },
    {
      "id": 1,
      "transcriptText": "Here are the three knife cuts every beginner should practice before anything else.",
      "durationSeconds": 44.0
    },
    {
      "id": 3,
      "transcriptText": "When my grandmother left Oaxaca she carried exactly one recipe with her, and this is the first time I am making it on camera.",
      "durationSeconds": 58.25
    },
    {
      "id": 4,
      "transcriptText": "The secret is resting the dough twice. Most tutorials skip this step and that is why their bread collapses.",
      "durationSeconds": 27.0
    }
  ]
}`
}

// SetupOS configures the necessary environment variables that the configuration
// loader (`cloud.LoadConfig`) depends on. By setting these variables, we can
// direct the loader to use the test-specific configuration files (e.g.,
// `configs/.env.test.toml`) instead of production or development ones.
//
// Returns:
//   - An error if setting any environment variable fails.
func SetupOS() (err error) {
	// Set the directory where the configuration files are located.
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// Set the runtime environment identifier to "test". This causes the loader
	// to look for a file named ".env.test.toml" for overrides.
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration.
// It ensures that the configuration is loaded from TOML files only once and
// is cached in the package-level `state` variable for subsequent calls.
// This is the primary way tests should retrieve their configuration.
//
// Returns:
//   - A pointer to the loaded and cached cloud.Config struct.
func GetConfig() *cloud.Config {
	// Check if the config is already cached.
	if state.config == nil {
		// If not cached, set up the OS environment for the test configuration.
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		// Create a new, empty config struct.
		config := cloud.NewConfig()
		// Load the configuration from the TOML files into the struct.
		// `LoadConfig` handles the hierarchical loading (base file + test override).
		cloud.LoadConfig(&config)
		// Cache the loaded config in our state manager.
		state.config = config
	}
	// Return the cached configuration.
	return state.config
}

// ScriptedContentGenerator is a fake generative model that satisfies
// cloud.ContentGenerator. It returns its scripted responses in order, one
// per call, and records each prompt it receives so tests can assert on the
// rendered template text. When Err is set, every call fails with that error
// instead, which is how tests simulate a misbehaving backend.
//
// The fake is safe for concurrent use; the classifier fans calls out across
// a worker pool.
type ScriptedContentGenerator struct {
	mu        sync.Mutex
	Responses []string // Remaining scripted responses, consumed front to back.
	Prompts   []string // Prompt text of every call received, in arrival order.
	Calls     int      // Total number of calls received.
	Err       error    // When non-nil, every call returns this error.
}

// GenerateContent pops the next scripted response and wraps it in the shape
// the real backend returns. Usage metadata is deliberately left nil; the
// calling code must tolerate its absence.
func (s *ScriptedContentGenerator) GenerateContent(_ context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if len(content) > 0 && len(content[0].Parts) > 0 {
		s.Prompts = append(s.Prompts, content[0].Parts[0].Text)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, fmt.Errorf("scripted generator exhausted after %d call(s)", s.Calls)
	}
	next := s.Responses[0]
	s.Responses = s.Responses[1:]
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: next}}}},
		},
	}, nil
}

// MemoryObjectReader is an in-memory implementation of cloud.ObjectReader.
// Objects are keyed by "bucket/object". It lets manifest-loading code run
// against fixture documents without touching Cloud Storage.
type MemoryObjectReader struct {
	Objects map[string]string
}

// ReadObject returns the stored document for the bucket and object pair, or
// an error mirroring a storage miss when no such object was registered.
func (m *MemoryObjectReader) ReadObject(_ context.Context, bucket string, object string) ([]byte, error) {
	if data, ok := m.Objects[bucket+"/"+object]; ok {
		return []byte(data), nil
	}
	return nil, fmt.Errorf("object %q not found in bucket %q", object, bucket)
}
