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

// Package cloud provides components for interacting with Google Cloud
// services. This file is central to the application's architecture: it
// initializes and holds all the client objects needed to communicate with
// Google Cloud. It acts as a dependency injection container, creating a
// single shared `ServiceClients` struct that is passed throughout the
// application.
//
// Logic Flow:
//  1. `NewCloudServiceClients` is called at application startup with the
//     loaded configuration and a root context.
//  2. Clients for Storage, Pub/Sub, GenAI, BigQuery, and IAM credentials
//     are initialized in turn.
//  3. The configuration is read to create Pub/Sub listeners and the
//     rate-limited agent models, stored in maps keyed by logical name.
//  4. Everything is bundled into a single `ServiceClients` struct used by
//     the API handlers, the workflow, and the services layer.
//
// Structs:
//   - ServiceClients: A container holding all initialized Google Cloud
//     service clients and service wrappers.
//
// Functions:
//   - Close: A convenience method to gracefully shut down client connections.
//   - NewCloudServiceClients: The factory that creates and configures all
//     clients based on the application's configuration.
package cloud

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is a central container for all the clients that interact
// with external Google Cloud services. This pattern is a form of
// dependency injection, making it easy to manage and share these client
// connections across the entire application.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                          // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                           // Client for Google's Generative AI services (Vertex AI).
	BiqQueryClient  *bigquery.Client                        // Client for Google Cloud BigQuery.
	IAMClient       *credentials.IamCredentialsClient       // Client for IAM, used to sign GCS URLs.
	PubSubListeners map[string]*PubSubListener              // Active Pub/Sub listeners, keyed by a logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Rate-limited GenAI agent models, keyed by a logical name.
}

// Close is a utility method to gracefully shut down the active client
// connections. Client connections are typically managed by the
// application's root context, but this provides an explicit way to
// release resources, which is especially useful in tests and controlled
// shutdowns. The genai client does not expose a close function; its
// connections follow the root context.
func (c *ServiceClients) Close() {
	_ = c.StorageClient.Close()
	_ = c.PubsubClient.Close()
	_ = c.BiqQueryClient.Close()
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// requestInterval converts a requests-per-minute quota into the minimum
// spacing between two requests. A zero or negative quota falls back to
// the default 1.5 second spacing.
func requestInterval(requestsPerMinute int) time.Duration {
	if requestsPerMinute <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Minute / time.Duration(requestsPerMinute)
}

// NewCloudServiceClients is a factory function that initializes all
// required Google Cloud service clients based on the provided
// configuration. It serves as the main entry point for setting up the
// application's external dependencies.
//
// Inputs:
//   - ctx: The root context.Context for the application, used to manage
//     the lifecycle of the clients.
//   - config: A pointer to the loaded application configuration.
//
// Outputs:
//   - *ServiceClients: A pointer to the fully initialized ServiceClients struct.
//   - error: An error if any of the clients fail to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	// Create a new Google Cloud Storage client.
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	// Create a new Google Cloud Pub/Sub client for the specified project.
	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	// Create a new Generative AI client against the Vertex AI backend.
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		log.Printf("error creating genai client: %v", err)
		return nil, err
	}

	// Create a new Google Cloud BigQuery client.
	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	// Create the IAM credentials client used to sign archive URLs.
	ic, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, err
	}

	// Create a PubSubListener for each configured subscription. The command
	// is initially nil; it is attached later, once the workflow is built.
	subscriptions := make(map[string]*PubSubListener)
	for subKey := range config.TopicSubscriptions {
		values := config.TopicSubscriptions[subKey]
		actual, err := NewPubSubListener(pc, values.Name, nil)
		if err != nil {
			return nil, err
		}
		subscriptions[subKey] = actual
	}

	// Build a generative model for each configured agent, apply its
	// settings, and wrap it in the rate-limiting QuotaAware model.
	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for amKey := range config.AgentModels {
		values := config.AgentModels[amKey]
		model := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](values.Temperature),
			TopP:              genai.Ptr[float32](values.TopP),
			TopK:              genai.Ptr[float32](values.TopK),
			MaxOutputTokens:   values.MaxTokens,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}},
			SafetySettings:    DefaultSafetySettings,
			ResponseMIMEType:  values.OutputFormat,
			Tools:             []*genai.Tool{},
		}
		agentModels[amKey] = NewQuotaAwareModel(model, values.Model, gc.Models, requestInterval(values.RateLimit))
	}

	// Assemble the final ServiceClients struct.
	cloud = &ServiceClients{
		StorageClient:   sc,
		PubsubClient:    pc,
		GenAIClient:     gc,
		BiqQueryClient:  bc,
		IAMClient:       ic,
		PubSubListeners: subscriptions,
		AgentModels:     agentModels,
	}

	return cloud, err
}
