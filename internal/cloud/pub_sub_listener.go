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
// services. This file defines a generic, reusable Pub/Sub message
// listener. The listener abstracts the mechanics of receiving messages
// from a subscription and delegates the actual processing to a "Command",
// keeping transport and business logic separate.
//
// Logic Flow:
//  1. A PubSubListener is created with a client and a subscription ID.
//  2. A Command (the caption pipeline, in this application) is attached.
//  3. `Listen` starts a background goroutine that waits for messages.
//  4. Each arriving message is handed to the Command inside a fresh CoR
//     context, with the raw message body as the initial input.
//  5. The message is acknowledged only when the Command's whole chain
//     finishes without errors; otherwise the message is left to redeliver
//     under the subscription's retry policy.
//  6. The process is instrumented with OpenTelemetry spans per message.
//
// Structs:
//   - PubSubListener: Manages the connection to a Pub/Sub subscription and
//     holds the command that processes incoming messages.
//
// Functions:
//   - NewPubSubListener: Constructor for creating a new PubSubListener.
//   - SetCommand: Attaches a processing command to the listener.
//   - Listen: Starts the background process to receive and handle messages.
package cloud

import (
	"context"
	"log"

	"cloud.google.com/go/pubsub"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener encapsulates the components needed to listen to a
// specific Google Cloud Pub/Sub subscription. It connects a subscription
// to a processing command. Listeners have a life-cycle independent of
// individual API requests, which is why they live in the cloud package.
type PubSubListener struct {
	client       *pubsub.Client       // The client for interacting with the Pub/Sub service.
	subscription *pubsub.Subscription // The subscription this listener pulls messages from.
	command      cor.Command          // The command executed for each received message.
}

// NewPubSubListener is the constructor for creating a PubSubListener.
//
// Inputs:
//   - pubsubClient: An authenticated *pubsub.Client.
//   - subscriptionID: The string ID of the subscription to pull from.
//   - command: The cor.Command holding the business logic to execute per
//     message. May be nil at construction and attached later.
//
// Outputs:
//   - *PubSubListener: A pointer to the newly created listener.
//   - error: Reserved for future construction failures; currently always nil.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command to the listener. Listeners are created
// during client setup, before the workflow chains exist, so the command
// arrives later. The first command attached wins; subsequent calls are
// ignored to prevent accidental overwrites.
//
// Inputs:
//   - command: The cor.Command to execute when a message is received.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts the asynchronous message receiving process in its own
// goroutine, leaving the caller free to continue serving API requests.
//
// Inputs:
//   - ctx: A context controlling the lifecycle of the listener. When it is
//     canceled (e.g. during graceful shutdown), receiving stops.
func (m *PubSubListener) Listen(ctx context.Context) {
	log.Printf("listening: %s", m.subscription)

	go func() {
		tracer := otel.Tracer("message-listener")

		// Receive blocks and invokes the callback for each message.
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			// Trace each message end to end under its own span.
			spanCtx, span := tracer.Start(ctx, "receive-message")
			span.SetName("receive-message")
			span.SetAttributes(attribute.String("msg", string(msg.Data)))
			log.Println("received message")

			// A fresh CoR context per message carries the data through the
			// command chain, seeded with the raw message body.
			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				// Ack tells Pub/Sub the message is fully processed.
				msg.Ack()
			} else {
				span.SetStatus(codes.Error, "failed")
				for _, e := range chainCtx.GetErrors() {
					log.Printf("error executing chain: %v", e)
				}
				// No Ack and no Nack: the message redelivers after its
				// acknowledgement deadline under the subscription's retry
				// policy, giving transient infrastructure failures another
				// chance.
			}

			span.End()
		})

		if err != nil {
			log.Printf("error receiving data: %v", err)
		}
	}()
}
