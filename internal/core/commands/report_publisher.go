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

	"cloud.google.com/go/pubsub"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// ReportPublisher is a command that announces a finished run on the
// completion topic. Downstream systems (the clip scheduler, notification
// fan-out) consume the compact completion event rather than the full
// report.
type ReportPublisher struct {
	cor.BaseCommand
	topic       *pubsub.Topic // The completion topic handle, reused across runs.
	reportParam string        // The context parameter holding the final report.
}

// NewReportPublisher is the constructor for the ReportPublisher command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - pubsubClient: An initialized Pub/Sub client.
//   - topicName: The completion topic name.
//   - reportParam: The context parameter name for the final report.
//
// Outputs:
//   - *ReportPublisher: A pointer to the newly instantiated command.
func NewReportPublisher(
	name string,
	pubsubClient *pubsub.Client,
	topicName string,
	reportParam string) *ReportPublisher {
	return &ReportPublisher{
		BaseCommand: *cor.NewBaseCommand(name),
		topic:       pubsubClient.Topic(topicName),
		reportParam: reportParam,
	}
}

// IsExecutable ensures the final report is present before publishing.
func (c *ReportPublisher) IsExecutable(context cor.Context) bool {
	return context.Get(c.reportParam) != nil
}

// Execute publishes the completion event and blocks until the server
// acknowledges it, so a failed publish fails the chain and the triggering
// message is redelivered.
func (c *ReportPublisher) Execute(context cor.Context) {
	report := context.Get(c.reportParam).(*model.FinalReport)

	event := model.NewCompletionEvent(report)
	payload, err := json.Marshal(event)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to serialize completion event %s: %w", report.CorrelationId, err))
		return
	}

	result := c.topic.Publish(context.GetContext(), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"correlation_id": report.CorrelationId,
		},
	})
	messageId, err := result.Get(context.GetContext())
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to publish completion event %s: %w", report.CorrelationId, err))
		return
	}

	log.Printf("published completion event for %s as message %s", report.CorrelationId, messageId)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), report)
}
