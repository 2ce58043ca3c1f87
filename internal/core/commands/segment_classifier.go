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

// Package commands - This file defines the SegmentClassifier command, which
// assigns a content style to every clip segment ahead of caption generation.
//
// Logic Flow:
// The classifier is a fan-out command built on a worker pool:
//
//  1. The ordered segment list is split into sub-batches of a configured
//     size. Batching keeps each prompt small enough for the model to answer
//     reliably while still amortizing the per-request overhead.
//  2. Each sub-batch becomes a job: a rendered prompt (segments as JSON, a
//     one-shot example envelope, and the allowed style names) plus its own
//     trace span and per-call timeout.
//  3. A pool of workers drains the job channel, calling the generative
//     model through the shared quota-aware wrapper.
//  4. Responses are decoded defensively and correlated strictly by segment
//     id against the ids that were actually sent in the batch. Entries for
//     unknown ids, duplicate ids, or unrecognizable styles are dropped.
//  5. A failed sub-batch never fails the run. It is recorded as an issue
//     and the segments simply stay unclassified; the style grouper decides
//     later whether they fall back to a default style or sit out.
//
// The fraction of segments that ended up classified is published as the
// coverage value. Low coverage is reported as an issue, not an error.
package commands

import (
	"bytes"
	goctx "context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GetClassificationsParamName returns the well-known context key for the
// ordered classification results of the current run.
func GetClassificationsParamName() string {
	return "__CLASSIFICATIONS__"
}

// GetCoverageParamName returns the well-known context key for the fraction
// of segments that received a classification.
func GetCoverageParamName() string {
	return "__COVERAGE__"
}

// ClassifyJob represents the state needed to classify a single sub-batch of
// segments on a worker.
type ClassifyJob struct {
	workerId int              // The sub-batch number, used in the span name.
	ctx      goctx.Context    // The span-scoped context for the model call.
	span     trace.Span       // The span covering this sub-batch.
	contents []*genai.Content // The rendered prompt for this sub-batch.
	model    cloud.ContentGenerator
	timeout  time.Duration // Per-call deadline for the model request.
	batchIds []int         // The segment ids present in this sub-batch.
	err      error         // Set when the job could not be constructed.
}

// Close sets the final status on the job's span and ends it.
func (j *ClassifyJob) Close(code codes.Code, description string) {
	j.span.SetStatus(code, description)
	j.span.End()
}

// ClassifyResponse is the worker's answer for one sub-batch: either the raw
// model payload or the error that stopped it.
type ClassifyResponse struct {
	batchIds []int
	value    string
	err      error
}

// SegmentClassifier is a command that determines the content style of each
// segment by sending sub-batches of transcripts to a generative model.
type SegmentClassifier struct {
	cor.BaseCommand
	generativeAIModel  cloud.ContentGenerator // The rate-limited model used for classification.
	promptTemplate     string                 // The classification prompt template from config.
	batchSize          int                    // Number of segments per model request.
	minCoverage        float64                // Coverage fraction below which an issue is recorded.
	numberOfWorkers    int                    // Size of the worker pool.
	requestTimeout     time.Duration          // Deadline applied to each model call.
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewSegmentClassifier is the constructor for the SegmentClassifier command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - generativeAIModel: The quota-aware model to classify with.
//   - promptTemplate: The classification prompt template text.
//   - batchSize: The number of segments per sub-batch (defaults to 10).
//   - minCoverage: The classification coverage floor (defaults to 0.6).
//   - numberOfWorkers: The worker pool size (defaults to 1).
//   - requestTimeout: The per-call deadline (defaults to 120 seconds).
//
// Outputs:
//   - *SegmentClassifier: A pointer to the newly instantiated command.
func NewSegmentClassifier(
	name string,
	generativeAIModel cloud.ContentGenerator,
	promptTemplate string,
	batchSize int,
	minCoverage float64,
	numberOfWorkers int,
	requestTimeout time.Duration) *SegmentClassifier {
	if batchSize <= 0 {
		batchSize = 10
	}
	if minCoverage <= 0 {
		minCoverage = 0.6
	}
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	out := &SegmentClassifier{
		BaseCommand:       *cor.NewBaseCommandWithParams(name, GetSegmentsParamName(), GetClassificationsParamName()),
		generativeAIModel: generativeAIModel,
		promptTemplate:    promptTemplate,
		batchSize:         batchSize,
		minCoverage:       minCoverage,
		numberOfWorkers:   numberOfWorkers,
		requestTimeout:    requestTimeout,
	}
	out.inputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.outputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))
	return out
}

// createJob builds the ClassifyJob for one sub-batch: it opens a span,
// renders the prompt from the template vocabulary, and records the segment
// ids the response will be correlated against.
func (s *SegmentClassifier) createJob(
	ctx goctx.Context,
	tracer trace.Tracer,
	batchNumber int,
	batch []*model.ClipSegment,
	promptTemplate *template.Template,
	exampleJson string) *ClassifyJob {
	spanCtx, span := tracer.Start(ctx, fmt.Sprintf("%s_genai_classify_%d", s.GetName(), batchNumber))
	out := &ClassifyJob{
		workerId: batchNumber,
		ctx:      spanCtx,
		span:     span,
		model:    s.generativeAIModel,
		timeout:  s.requestTimeout,
		batchIds: make([]int, 0, len(batch)),
	}
	for _, segment := range batch {
		out.batchIds = append(out.batchIds, segment.Id)
	}

	segmentsJson, err := json.Marshal(batch)
	if err != nil {
		out.err = err
		return out
	}

	// The vocabulary is used to fill in the variables of the prompt template.
	vocabulary := map[string]string{
		"STYLE_NAMES":   strings.Join(model.AllStyles(), ", "),
		"SEGMENTS_JSON": string(segmentsJson),
		"EXAMPLE_JSON":  exampleJson,
	}
	buffer := new(bytes.Buffer)
	if err := promptTemplate.Execute(buffer, vocabulary); err != nil {
		out.err = err
		return out
	}
	out.contents = cloud.NewTextPart(buffer.String())
	return out
}

// classifyWorker drains the job channel, invoking the model once per
// sub-batch with a per-call timeout, and pushes raw responses onto the
// results channel.
func (s *SegmentClassifier) classifyWorker(jobs <-chan *ClassifyJob, results chan<- *ClassifyResponse, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		if j.err != nil {
			j.Close(codes.Error, j.err.Error())
			results <- &ClassifyResponse{batchIds: j.batchIds, err: j.err}
			continue
		}
		callCtx, cancel := goctx.WithTimeout(j.ctx, j.timeout)
		value, err := cloud.GenerateTextResponse(
			callCtx,
			s.inputTokenCounter,
			s.outputTokenCounter,
			s.retryCounter,
			0,
			j.model,
			j.contents)
		cancel()
		if err != nil {
			j.Close(codes.Error, err.Error())
			results <- &ClassifyResponse{batchIds: j.batchIds, err: err}
			continue
		}
		j.Close(codes.Ok, "classified")
		results <- &ClassifyResponse{batchIds: j.batchIds, value: value}
	}
}

// Execute fans the segment list out over the worker pool and assembles the
// per-segment classification results.
func (s *SegmentClassifier) Execute(context cor.Context) {
	tracer := otel.Tracer(s.GetName())
	segments := context.Get(s.GetInputParam()).([]*model.ClipSegment)

	results := make([]*model.ClassificationResult, 0, len(segments))
	if len(segments) == 0 {
		context.Add(s.GetOutputParam(), results)
		context.Add(GetCoverageParamName(), 0.0)
		context.Add(cor.CtxOut, results)
		return
	}

	promptTemplate, err := template.New(s.GetName()).Parse(s.promptTemplate)
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), fmt.Errorf("failed to parse classification prompt template: %w", err))
		return
	}

	exampleJson, err := json.Marshal(model.GetExampleClassificationEnvelope())
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), err)
		return
	}

	batches := make([][]*model.ClipSegment, 0)
	for start := 0; start < len(segments); start += s.batchSize {
		end := start + s.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batches = append(batches, segments[start:end])
	}

	jobs := make(chan *ClassifyJob, len(batches))
	classifyResults := make(chan *ClassifyResponse, len(batches))

	wg := sync.WaitGroup{}
	for w := 1; w <= s.numberOfWorkers; w++ {
		wg.Add(1)
		go s.classifyWorker(jobs, classifyResults, &wg)
	}

	for i, batch := range batches {
		if err := context.GetContext().Err(); err != nil {
			context.AddError(s.GetName(), err)
			break
		}
		jobs <- s.createJob(context.GetContext(), tracer, i, batch, promptTemplate, string(exampleJson))
	}
	close(jobs)
	wg.Wait()
	close(classifyResults)

	// Merge worker output. First classification per segment id wins; batch
	// failures degrade to issues so the remaining segments still flow on.
	byId := make(map[int]*model.ClassificationResult)
	for response := range classifyResults {
		if response.err != nil {
			s.GetErrorCounter().Add(context.GetContext(), 1)
			log.Printf("classification batch failed: %v", response.err)
			AddIssue(context, fmt.Sprintf("classification failed for sub-batch of %d segments", len(response.batchIds)))
			continue
		}
		for _, result := range DecodeClassifications(response.value, response.batchIds) {
			if _, ok := byId[result.SegmentId]; !ok {
				byId[result.SegmentId] = result
			}
		}
	}

	for _, segment := range segments {
		if result, ok := byId[segment.Id]; ok {
			results = append(results, result)
		}
	}

	coverage := float64(len(results)) / float64(len(segments))
	if coverage < s.minCoverage {
		AddIssue(context, fmt.Sprintf("classification coverage %.2f below minimum %.2f", coverage, s.minCoverage))
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(s.GetOutputParam(), results)
	context.Add(GetCoverageParamName(), coverage)
	context.Add(cor.CtxOut, results)
}

// classificationRecord tolerates the key and type drift observed in model
// responses: ids may ride under several names and numbers may arrive as
// strings.
type classificationRecord struct {
	SegmentId      interface{} `json:"segmentId"`
	SegmentIdSnake interface{} `json:"segment_id"`
	ClipId         interface{} `json:"clipId"`
	ClipIdSnake    interface{} `json:"clip_id"`
	Id             interface{} `json:"id"`
	Style          string      `json:"style"`
	Confidence     interface{} `json:"confidence"`
	Rationale      string      `json:"rationale"`
}

// classificationEnvelopeRecord is the preferred top-level response shape.
type classificationEnvelopeRecord struct {
	Classifications []*classificationRecord `json:"classifications"`
}

// DecodeClassifications parses a model response into classification results,
// keeping only entries that correlate with the segment ids actually sent in
// the sub-batch.
//
// The payload may be the documented envelope or a bare array. Entries with
// missing or unknown ids, duplicate ids, or styles that cannot be normalized
// are dropped. Confidence values are coerced to float and clamped to [0, 1].
//
// Inputs:
//   - payload: The fenced-stripped response text from the model.
//   - batchIds: The segment ids that were present in the request.
//
// Outputs:
//   - []*model.ClassificationResult: The usable classifications, possibly empty.
func DecodeClassifications(payload string, batchIds []int) []*model.ClassificationResult {
	requested := make(map[int]bool, len(batchIds))
	for _, id := range batchIds {
		requested[id] = true
	}

	var records []*classificationRecord
	var envelope classificationEnvelopeRecord
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil && len(envelope.Classifications) > 0 {
		records = envelope.Classifications
	} else if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil
	}

	out := make([]*model.ClassificationResult, 0, len(records))
	seen := make(map[int]bool)
	for _, record := range records {
		if record == nil {
			continue
		}
		id, ok := asInt(firstValue(record.SegmentId, record.SegmentIdSnake, record.ClipId, record.ClipIdSnake, record.Id))
		if !ok || !requested[id] || seen[id] {
			continue
		}
		style := model.NormalizeStyle(record.Style)
		if style == "" {
			continue
		}
		seen[id] = true
		result := &model.ClassificationResult{
			SegmentId: id,
			Style:     style,
			Rationale: strings.TrimSpace(record.Rationale),
		}
		if confidence, ok := asFloat(record.Confidence); ok {
			result.Confidence = model.ClampScore(confidence, 0, 1)
		}
		out = append(out, result)
	}
	return out
}

// firstValue returns the first non-nil value, or nil when all are nil.
func firstValue(values ...interface{}) interface{} {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

// asInt coerces a decoded JSON value into an integer id. JSON numbers and
// numeric strings are accepted; fractional numbers are not ids and are
// rejected.
func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// asFloat coerces a decoded JSON value into a float, accepting numeric
// strings.
func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
