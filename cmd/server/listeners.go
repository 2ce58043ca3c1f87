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

// Package main contains the logic for setting up and starting the Pub/Sub message listener.
// The listener is responsible for initiating the caption pipeline in response to caption
// request messages, whether published by this server's API or by an upstream system.
//
// Functions:
//   - SetupListeners: Initializes and starts the listener for the caption request
//     subscription, attaching the caption pipeline workflow.
package main

import (
	"context"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/workflow"
)

// ListenerCaptionRequests is the logical name of the caption request
// subscription under [topic_subscriptions] in the configuration files.
const ListenerCaptionRequests = "CaptionRequests"

// SetupListeners configures and starts the background Pub/Sub listener.
// It creates the caption pipeline workflow and attaches it to the listener
// for the caption request subscription.
//
// Inputs:
//   - config: The application's configuration, containing settings for storage, topics, etc.
//   - cloudClients: A struct containing all the initialized Google Cloud service clients.
//   - ctx: The application's root context, used to manage the lifecycle of the listener.
//
// Outputs:
//   - This function does not return any value. It starts the listener as a background goroutine.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, ctx context.Context) {
	// Create the caption pipeline workflow. Each incoming message carries a
	// caption request pointing at a segment manifest in Cloud Storage.
	captionPipeline := workflow.NewCaptionPipeline(config, cloudClients)
	// Assign the pipeline as the command to be executed when a request message arrives.
	cloudClients.PubSubListeners[ListenerCaptionRequests].SetCommand(captionPipeline)
	// Start the listener in a background goroutine. It will now begin receiving and processing messages from its subscription.
	cloudClients.PubSubListeners[ListenerCaptionRequests].Listen(ctx)
}
