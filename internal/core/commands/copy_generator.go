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

// Package commands - This file defines the CopyGenerator command, which
// produces caption drafts for every style group in a single model call per
// group.
//
// Logic Flow:
//  1. The generation scope (the style groups for this attempt) is read from
//     the context. On a first attempt that is every group; on a scoped
//     retry the workflow narrows it to the one style being regenerated.
//  2. Groups are processed sequentially in their fixed order. One request
//     is issued per group carrying all of the group's segments, the style
//     directive, the brand tag, a one-shot example envelope, and, on
//     retries, the refinement directive chosen by the retry planner.
//  3. Responses are decoded defensively and correlated strictly by clip id
//     against the group's segments. Unknown and duplicate ids are dropped.
//  4. A failed or unparsable group contributes zero drafts and an issue but
//     never stops the remaining groups. Missing clips surface later in the
//     report's generation metadata.
package commands

import (
	"bytes"
	goctx "context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// GetGenerationScopeParamName returns the well-known context key holding the
// style groups to generate captions for in the current attempt.
func GetGenerationScopeParamName() string {
	return "__GENERATION_SCOPE__"
}

// GetDraftsParamName returns the well-known context key holding the raw
// caption drafts produced by the current attempt.
func GetDraftsParamName() string {
	return "__DRAFTS__"
}

// GetRefinementParamName returns the well-known context key carrying the
// optional refinement directive applied to retry attempts.
func GetRefinementParamName() string {
	return "__REFINEMENT__"
}

// CopyGenerator is a command that turns style groups into caption drafts by
// prompting a generative model once per group.
type CopyGenerator struct {
	cor.BaseCommand
	generativeAIModel  cloud.ContentGenerator // The rate-limited model used for generation.
	promptTemplate     string                 // The generation prompt template from config.
	brandTag           string                 // The required brand hashtag for every caption.
	requestTimeout     time.Duration          // Deadline applied to each model call.
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewCopyGenerator is the constructor for the CopyGenerator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - generativeAIModel: The quota-aware model to generate with.
//   - promptTemplate: The generation prompt template text.
//   - brandTag: The brand hashtag captions must carry (defaults to "#AICDMX").
//   - requestTimeout: The per-call deadline (defaults to 120 seconds).
//
// Outputs:
//   - *CopyGenerator: A pointer to the newly instantiated command.
func NewCopyGenerator(
	name string,
	generativeAIModel cloud.ContentGenerator,
	promptTemplate string,
	brandTag string,
	requestTimeout time.Duration) *CopyGenerator {
	if brandTag == "" {
		brandTag = "#AICDMX"
	}
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	out := &CopyGenerator{
		BaseCommand:       *cor.NewBaseCommandWithParams(name, GetGenerationScopeParamName(), GetDraftsParamName()),
		generativeAIModel: generativeAIModel,
		promptTemplate:    promptTemplate,
		brandTag:          brandTag,
		requestTimeout:    requestTimeout,
	}
	out.inputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.outputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))
	return out
}

// GenerateParams builds the vocabulary used to fill in the variables of the
// generation prompt template for one style group.
//
// Inputs:
//   - group: The style group being generated.
//   - refinement: The refinement directive for retry attempts, or "".
//   - exampleJson: The serialized one-shot example envelope.
//
// Outputs:
//   - map[string]string: The template vocabulary.
//   - error: An error if the group's segments cannot be serialized.
func (c *CopyGenerator) GenerateParams(group *model.StyleGroup, refinement string, exampleJson string) (map[string]string, error) {
	segmentsJson, err := json.Marshal(group.Segments)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"STYLE_NAME":      group.Style,
		"STYLE_DIRECTIVE": model.StyleDirective(group.Style),
		"REFINEMENT":      refinement,
		"CLIP_COUNT":      strconv.Itoa(len(group.Segments)),
		"BRAND_TAG":       c.brandTag,
		"SEGMENTS_JSON":   string(segmentsJson),
		"EXAMPLE_JSON":    exampleJson,
	}, nil
}

// generateForGroup renders the prompt for one group and executes the model
// call under the per-call timeout.
func (c *CopyGenerator) generateForGroup(
	ctx goctx.Context,
	promptTemplate *template.Template,
	group *model.StyleGroup,
	refinement string,
	exampleJson string) (string, error) {
	vocabulary, err := c.GenerateParams(group, refinement, exampleJson)
	if err != nil {
		return "", err
	}
	buffer := new(bytes.Buffer)
	if err := promptTemplate.Execute(buffer, vocabulary); err != nil {
		return "", err
	}

	callCtx, cancel := goctx.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return cloud.GenerateTextResponse(
		callCtx,
		c.inputTokenCounter,
		c.outputTokenCounter,
		c.retryCounter,
		0,
		c.generativeAIModel,
		cloud.NewTextPart(buffer.String()))
}

// Execute generates caption drafts for every group in the current scope.
func (c *CopyGenerator) Execute(context cor.Context) {
	groups := context.Get(c.GetInputParam()).([]*model.StyleGroup)
	refinement := ""
	if directive, ok := context.Get(GetRefinementParamName()).(string); ok {
		refinement = directive
	}

	drafts := make([]*model.GeneratedCopy, 0)
	if len(groups) == 0 {
		context.Add(c.GetOutputParam(), drafts)
		context.Add(cor.CtxOut, drafts)
		return
	}

	promptTemplate, err := template.New(c.GetName()).Parse(c.promptTemplate)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to parse generation prompt template: %w", err))
		return
	}

	exampleJson, err := json.Marshal(model.GetExampleDraftEnvelope(c.brandTag))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	tracer := otel.Tracer(c.GetName())
	for _, group := range groups {
		if err := context.GetContext().Err(); err != nil {
			context.AddError(c.GetName(), err)
			break
		}

		spanCtx, span := tracer.Start(context.GetContext(), fmt.Sprintf("%s_genai_generate_%s", c.GetName(), group.Style))
		value, err := c.generateForGroup(spanCtx, promptTemplate, group, refinement, string(exampleJson))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			c.GetErrorCounter().Add(context.GetContext(), 1)
			log.Printf("caption generation failed for style %q: %v", group.Style, err)
			AddIssue(context, fmt.Sprintf("caption generation failed for style %q", group.Style))
			continue
		}

		decoded, err := DecodeDrafts(value, group)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			c.GetErrorCounter().Add(context.GetContext(), 1)
			AddIssue(context, fmt.Sprintf("unparsable generation response for style %q", group.Style))
			continue
		}
		span.SetStatus(codes.Ok, fmt.Sprintf("generated %d draft(s)", len(decoded)))
		span.End()
		drafts = append(drafts, decoded...)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), drafts)
	context.Add(cor.CtxOut, drafts)
}

// draftMetadataRecord tolerates key and type drift in the metadata block of
// a generated clip: camelCase and snake_case keys, numbers as strings, and
// topics as either an array or a single string.
type draftMetadataRecord struct {
	Sentiment                        string      `json:"sentiment"`
	SentimentScore                   interface{} `json:"sentimentScore"`
	SentimentScoreSnake              interface{} `json:"sentiment_score"`
	EngagementScore                  interface{} `json:"engagementScore"`
	EngagementScoreSnake             interface{} `json:"engagement_score"`
	SuggestedThumbnailTimestamp      interface{} `json:"suggestedThumbnailTimestamp"`
	SuggestedThumbnailTimestampSnake interface{} `json:"suggested_thumbnail_timestamp"`
	PrimaryTopics                    interface{} `json:"primaryTopics"`
	PrimaryTopicsSnake               interface{} `json:"primary_topics"`
	HookStrength                     string      `json:"hookStrength"`
	HookStrengthSnake                string      `json:"hook_strength"`
	ViralPotential                   interface{} `json:"viralPotential"`
	ViralPotentialSnake              interface{} `json:"viral_potential"`
}

// toMetadata coerces the raw metadata record into the canonical typed form.
// Values keep their raw content here; range clamping and enum normalization
// happen in the validator.
func (m *draftMetadataRecord) toMetadata() *model.CopyMetadata {
	if m == nil {
		return nil
	}
	out := &model.CopyMetadata{
		Sentiment:     strings.TrimSpace(m.Sentiment),
		PrimaryTopics: asStringSlice(firstValue(m.PrimaryTopics, m.PrimaryTopicsSnake)),
		HookStrength:  firstString(m.HookStrength, m.HookStrengthSnake),
	}
	if v, ok := asFloat(firstValue(m.SentimentScore, m.SentimentScoreSnake)); ok {
		out.SentimentScore = v
	}
	if v, ok := asFloat(firstValue(m.EngagementScore, m.EngagementScoreSnake)); ok {
		out.EngagementScore = v
	}
	if v, ok := asFloat(firstValue(m.SuggestedThumbnailTimestamp, m.SuggestedThumbnailTimestampSnake)); ok {
		out.SuggestedThumbnailTimestamp = v
	}
	if v, ok := asFloat(firstValue(m.ViralPotential, m.ViralPotentialSnake)); ok {
		out.ViralPotential = v
	}
	return out
}

// draftRecord tolerates the id and caption key variants observed in model
// responses.
type draftRecord struct {
	ClipId      interface{}          `json:"clipId"`
	ClipIdSnake interface{}          `json:"clip_id"`
	SegmentId   interface{}          `json:"segmentId"`
	Id          interface{}          `json:"id"`
	Copy        string               `json:"copy"`
	CaptionText string               `json:"captionText"`
	Caption     string               `json:"caption"`
	Metadata    *draftMetadataRecord `json:"metadata"`
}

// draftEnvelopeRecord is the preferred top-level response shape.
type draftEnvelopeRecord struct {
	Clips []*draftRecord `json:"clips"`
}

// DecodeDrafts parses a model response into caption drafts for one style
// group, keeping only entries whose clip id correlates with a segment that
// was actually sent.
//
// The payload may be the documented clips envelope or a bare array. An error
// is returned only when the payload matches neither shape; unusable entries
// inside a parsable payload are silently dropped.
//
// Inputs:
//   - payload: The fence-stripped response text from the model.
//   - group: The style group the request was issued for.
//
// Outputs:
//   - []*model.GeneratedCopy: The decoded drafts, tagged with the group's style.
//   - error: An error when the payload is structurally unparsable.
func DecodeDrafts(payload string, group *model.StyleGroup) ([]*model.GeneratedCopy, error) {
	requested := make(map[int]bool, len(group.Segments))
	for _, segment := range group.Segments {
		requested[segment.Id] = true
	}

	var records []*draftRecord
	var envelope draftEnvelopeRecord
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil && len(envelope.Clips) > 0 {
		records = envelope.Clips
	} else if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("response is neither a clips envelope nor an array: %w", err)
	}

	out := make([]*model.GeneratedCopy, 0, len(records))
	seen := make(map[int]bool)
	for _, record := range records {
		if record == nil {
			continue
		}
		id, ok := asInt(firstValue(record.ClipId, record.ClipIdSnake, record.SegmentId, record.Id))
		if !ok || !requested[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, &model.GeneratedCopy{
			ClipId:   id,
			Copy:     strings.TrimSpace(firstString(record.Copy, record.CaptionText, record.Caption)),
			Style:    group.Style,
			Metadata: record.Metadata.toMetadata(),
		})
	}
	return out, nil
}

// firstString returns the first value that is non-empty after trimming.
func firstString(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// asStringSlice coerces a decoded JSON value into a string slice. A bare
// string becomes a single-element slice; non-string array members are
// dropped.
func asStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, member := range v {
			if s, ok := member.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
