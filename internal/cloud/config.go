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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for the caption pipeline's components: Google Cloud services, AI models,
// Pub/Sub topics, quality-gate tuning, and prompt templates.
//
// This file centralizes all configuration-related structs, making it easy
// to understand and manage the application's configurable parameters.
//
// Structs:
//   - BigQueryDataSource: Configuration for the report dataset and table.
//   - PromptTemplates: Text templates for prompts sent to the GenAI models.
//   - VertexAiLLMModel: Configuration for a Vertex AI Large Language Model.
//   - TopicSubscription: Configuration for a Pub/Sub topic subscription.
//   - Topics: Names of the topics the pipeline publishes to.
//   - Storage: Configuration for Cloud Storage buckets.
//   - Pipeline: Tuning knobs for classification, validation, and the retry loop.
//   - Config: The top-level struct that aggregates everything above.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with empty maps.
package cloud

import "google.golang.org/genai"

// Well-known agent model keys in the [agent_models] configuration table.
// The workflow resolves its classifier and generator through these names.
const (
	AgentKeyClassifier = "classifier"
	AgentKeyGenerator  = "generator"
)

// DefaultSafetySettings defines the default content safety thresholds for
// GenAI models. These settings are configured to be non-restrictive,
// allowing all content categories (Dangerous Content, Harassment, Hate
// Speech, Sexually Explicit) to pass through without being blocked. This is
// a common setup for internal or controlled environments where the input
// data is trusted.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// BigQueryDataSource represents the configuration for the BigQuery data
// source the pipeline writes reports to.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`      // The name of the BigQuery dataset.
	ReportTable string `toml:"report_table"` // The name of the table holding caption report rows.
}

// PromptTemplates holds the templates for the two prompt kinds the
// pipeline issues. Templates use Go text/template syntax with a vocabulary
// map supplied by the issuing command.
type PromptTemplates struct {
	ClassifyPrompt string `toml:"classify"` // The template for classifying segments into styles.
	GeneratePrompt string `toml:"generate"` // The template for generating captions for one style group.
}

// VertexAiLLMModel represents the configuration for a Vertex AI large
// language model (LLM).
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the Vertex AI LLM.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the LLM.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter for the LLM.
	TopP               float32 `toml:"top_p"`               // The top_p parameter for the LLM.
	TopK               float32 `toml:"top_k"`               // The top_k parameter for the LLM.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of tokens for the LLM output.
	OutputFormat       string  `toml:"output_format"`       // The desired output MIME type, e.g. "application/json".
	RateLimit          int     `toml:"rate_limit"`          // Maximum requests per minute; 40 yields the default 1.5s spacing.
}

// TopicSubscription represents the configuration for a Pub/Sub topic
// subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Topics holds the names of the topics the pipeline publishes to.
type Topics struct {
	RequestTopic    string `toml:"request_topic"`    // Topic the API publishes caption requests to.
	CompletionTopic string `toml:"completion_topic"` // Topic the pipeline publishes completion events to.
}

// Storage represents the configuration for storage buckets.
type Storage struct {
	ManifestBucket string `toml:"manifest_bucket"` // Bucket holding uploaded segment manifests.
	ReportBucket   string `toml:"report_bucket"`   // Bucket final reports are archived to.
}

// Pipeline holds the tuning knobs for the caption quality loop. Every
// value has a serviceable default applied by the workflow when the field
// is zero, so a minimal configuration file still runs.
type Pipeline struct {
	ClassifyBatchSize     int     `toml:"classify_batch_size"`     // Segments per classification sub-batch (default 10).
	MinCoverage           float64 `toml:"min_coverage"`            // Classification coverage below this fraction is flagged as an issue (default 0.6).
	AcceptanceThreshold   float64 `toml:"acceptance_threshold"`    // Average engagement required to accept an attempt (default 7.5).
	LowScoreFloor         float64 `toml:"low_score_floor"`         // Engagement below this flags a copy for targeted retry (default 6.5).
	MaxAttempts           int     `toml:"max_attempts"`            // Generation attempts before the planner exhausts (default 3).
	BrandTag              string  `toml:"brand_tag"`               // Required trailing brand tag on every caption (default "#AICDMX").
	FallbackStyle         string  `toml:"fallback_style"`          // Style assigned to segments the classifier missed (default storytelling).
	FallbackEnabled       bool    `toml:"fallback_enabled"`        // When false, unclassified segments are excluded from generation.
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"` // Per-backend-call timeout (default 120).
}

// Config represents the overall configuration for the application, loaded
// from TOML files. It acts as the root container for all other
// configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // The size of the worker pool for parallel classification.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`               // Storage configuration.
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"` // BigQuery data source configuration.
	Pipeline           Pipeline                     `toml:"pipeline"`              // Quality loop tuning.
	Topics             Topics                       `toml:"topics"`                // Publish-side topic names.
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`      // Prompt templates configuration.
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`   // Pub/Sub subscriptions, keyed by a logical name (e.g. "CaptionRequests").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`          // Vertex AI LLM models, keyed by a logical name (e.g. "classifier").
}

// NewConfig is a constructor function that creates a new, initialized
// Config instance. It is important to initialize the maps within the
// struct to avoid nil pointer panics when the configuration loader tries
// to populate them.
//
// Outputs:
//   - *Config: A pointer to a new Config struct with its map fields initialized.
func NewConfig() *Config {
	out := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	// Fallback grouping is on unless the configuration turns it off. The
	// default has to be set before the TOML overlay because an absent key
	// and an explicit false are indistinguishable after decoding.
	out.Pipeline.FallbackEnabled = true
	return out
}
