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

// Package workflow defines the high-level business logic orchestrations,
// combining commands into coherent pipelines. This file implements the
// caption quality pipeline.
package workflow

import (
	"fmt"
	"time"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/cloud"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/commands"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// CaptionPipelineWorkflow orchestrates a full caption run: parse the
// request, load the segment manifest, classify segments into styles,
// generate and validate captions under the quality retry loop, and fan the
// final report out to its sinks.
//
// The run moves through an explicit attempt state machine. Every attempt is
// generated, validated, and analyzed; the retry planner then resolves it to
// ACCEPTED, RETRY, or EXHAUSTED. A retry may regenerate everything or just
// the one style group whose copies dragged the average down, carrying the
// other groups' copies forward. When the budget runs out, the best attempt
// seen is the one reported.
//
// The workflow is typically triggered by a caption request message arriving
// on the request subscription.
type CaptionPipelineWorkflow struct {
	cor.BaseCommand
	config          *cloud.Config
	serviceClients  *cloud.ServiceClients // Nil for sink-free pipelines.
	manifestReader  cloud.ObjectReader
	classifierModel cloud.ContentGenerator
	generatorModel  cloud.ContentGenerator
	modelIdentifier string        // The generator model name recorded on reports.
	requestTimeout  time.Duration // Per-model-call deadline.
	maxAttempts     int           // Generation attempt budget.

	intakeChain   cor.Chain // Request parsing and manifest loading.
	classifyChain cor.Chain // Segment classification and style grouping.
	generateChain cor.Chain // Caption generation and validation, run once per attempt.
	evaluateChain cor.Chain // Quality analysis and the retry decision, run once per attempt.
	finishChain   cor.Chain // Report assembly and the sink commands.
}

// Execute runs the caption pipeline end to end on the given context.
//
// Logic Flow:
//  1. Intake parses the request and loads the manifest. An empty manifest
//     skips classification and generation entirely; the run still reaches
//     report assembly so the outcome is recorded.
//  2. Classification and grouping run once per request.
//  3. The generation loop runs up to the attempt budget.
//  4. The finish chain assembles the report and, on a fully wired
//     pipeline, persists, archives, and announces it.
//
// A chain error at any point stops the run before the finish chain; the
// triggering message is then not acknowledged and redelivery retries the
// whole run.
func (w *CaptionPipelineWorkflow) Execute(context cor.Context) {
	w.intakeChain.Execute(context)
	if context.HasErrors() {
		return
	}

	segments := context.Get(commands.GetSegmentsParamName()).([]*model.ClipSegment)
	if len(segments) > 0 {
		w.classifyChain.Execute(context)
		if context.HasErrors() {
			return
		}
		w.runGenerationLoop(context)
		if context.HasErrors() {
			return
		}
	}

	w.finishChain.Execute(context)
}

// runGenerationLoop drives the attempt state machine until the planner
// accepts an attempt, the budget is exhausted, or an error aborts the run.
func (w *CaptionPipelineWorkflow) runGenerationLoop(context cor.Context) {
	groups := context.Get(commands.GetStyleGroupsParamName()).([]*model.StyleGroup)
	if len(groups) == 0 {
		// Every segment was excluded; the grouper has already recorded why.
		return
	}

	history := make([]*model.AttemptRecord, 0, w.maxAttempts)
	scope := groups
	var carried []*model.GeneratedCopy
	refinement := ""

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		context.Add(commands.GetAttemptCountParamName(), attempt)
		context.Add(commands.GetGenerationScopeParamName(), scope)
		context.Add(commands.GetRefinementParamName(), refinement)

		w.generateChain.Execute(context)
		if context.HasErrors() {
			return
		}

		validated := context.Get(commands.GetValidCopiesParamName()).([]*model.GeneratedCopy)
		merged := mergeAttemptCopies(carried, validated)
		context.Add(commands.GetMergedCopiesParamName(), merged)

		w.evaluateChain.Execute(context)
		if context.HasErrors() {
			return
		}

		metrics := context.Get(commands.GetQualityParamName()).(*model.QualityMetrics)
		history = append(history, &model.AttemptRecord{Attempt: attempt, Copies: merged, Metrics: metrics})
		context.Add(commands.GetAttemptHistoryParamName(), history)

		decision := context.Get(commands.GetRetryDecisionParamName()).(*model.RetryDecision)
		switch decision.State {
		case model.StateAccepted:
			return
		case model.StateExhausted:
			// Report the strongest attempt seen, not necessarily the last.
			if best := model.BestAttempt(history); best != nil && best.Attempt != attempt {
				commands.AddLog(context, fmt.Sprintf("retry budget exhausted, reporting attempt %d", best.Attempt))
				context.Add(commands.GetMergedCopiesParamName(), best.Copies)
				context.Add(commands.GetQualityParamName(), best.Metrics)
			} else {
				commands.AddLog(context, "retry budget exhausted")
			}
			return
		case model.StateRetry:
			refinement = decision.Directive
			scope = groups
			carried = nil
			if decision.Scope == model.ScopeGroup {
				if target := findGroup(groups, decision.TargetStyle); target != nil {
					scope = []*model.StyleGroup{target}
					carried = merged
				}
			}
		}
	}
}

// initializeChains builds the command chains that make up this workflow.
// This method is called by the constructors.
func (w *CaptionPipelineWorkflow) initializeChains() {
	reportParam := commands.GetFinalReportParamName()

	// Intake: parse the trigger message and load the segment manifest.
	intake := cor.NewBaseChain("caption-intake")
	intake.AddCommand(commands.NewRequestTriggerReader("read-caption-request"))
	intake.AddCommand(commands.NewManifestLoader("load-segment-manifest", w.manifestReader))
	w.intakeChain = intake

	// Classification: style every segment, then partition into groups.
	classify := cor.NewBaseChain("caption-classify")
	classify.AddCommand(commands.NewSegmentClassifier(
		"classify-segments",
		w.classifierModel,
		w.config.PromptTemplates.ClassifyPrompt,
		w.config.Pipeline.ClassifyBatchSize,
		w.config.Pipeline.MinCoverage,
		w.config.Application.ThreadPoolSize,
		w.requestTimeout))
	classify.AddCommand(commands.NewStyleGrouper(
		"group-by-style",
		w.config.Pipeline.FallbackStyle,
		w.config.Pipeline.FallbackEnabled))
	w.classifyChain = classify

	// Generation: one model call per style group, then draft repair.
	generate := cor.NewBaseChain("caption-generate")
	generate.AddCommand(commands.NewCopyGenerator(
		"generate-captions",
		w.generatorModel,
		w.config.PromptTemplates.GeneratePrompt,
		w.config.Pipeline.BrandTag,
		w.requestTimeout))
	generate.AddCommand(commands.NewCopyValidator("validate-captions", w.config.Pipeline.BrandTag))
	w.generateChain = generate

	// Evaluation: score the merged copy set and decide the attempt's fate.
	evaluate := cor.NewBaseChain("caption-evaluate")
	evaluate.AddCommand(commands.NewQualityAnalyzer("analyze-quality", w.config.Pipeline.LowScoreFloor))
	evaluate.AddCommand(commands.NewRetryPlanner(
		"plan-retry",
		w.config.Pipeline.AcceptanceThreshold,
		w.config.Pipeline.MaxAttempts))
	w.evaluateChain = evaluate

	// Finish: assemble the report, then persist, archive, and announce it.
	// Sink commands are only wired when service clients are present so the
	// pipeline can run without cloud dependencies.
	finish := cor.NewBaseChain("caption-finish")
	finish.AddCommand(commands.NewReportAssembler("assemble-report", w.modelIdentifier))
	if w.serviceClients != nil {
		finish.AddCommand(commands.NewReportPersistToBigQuery(
			"write-report-to-bigquery",
			w.serviceClients.BiqQueryClient,
			w.config.BigQueryDataSource.DatasetName,
			w.config.BigQueryDataSource.ReportTable,
			reportParam))
		finish.AddCommand(commands.NewReportArchiveToGCS(
			"archive-report",
			w.serviceClients.StorageClient,
			w.config.Storage.ReportBucket,
			reportParam))
		finish.AddCommand(commands.NewReportPublisher(
			"publish-completion",
			w.serviceClients.PubsubClient,
			w.config.Topics.CompletionTopic,
			reportParam))
	}
	w.finishChain = finish
}

// mergeAttemptCopies overlays the copies of the current attempt onto the
// carried-forward set. The current attempt wins per clip id; carried copies
// without a replacement persist, so a scoped retry that loses a clip keeps
// the previous valid copy instead of a gap.
func mergeAttemptCopies(previous []*model.GeneratedCopy, current []*model.GeneratedCopy) []*model.GeneratedCopy {
	if len(previous) == 0 {
		return current
	}
	replacements := make(map[int]*model.GeneratedCopy, len(current))
	for _, copy := range current {
		replacements[copy.ClipId] = copy
	}

	out := make([]*model.GeneratedCopy, 0, len(previous)+len(current))
	seen := make(map[int]bool, len(previous))
	for _, copy := range previous {
		seen[copy.ClipId] = true
		if updated, ok := replacements[copy.ClipId]; ok {
			out = append(out, updated)
			continue
		}
		out = append(out, copy)
	}
	for _, copy := range current {
		if !seen[copy.ClipId] {
			out = append(out, copy)
		}
	}
	return out
}

// findGroup returns the group with the given style, or nil.
func findGroup(groups []*model.StyleGroup, style string) *model.StyleGroup {
	for _, group := range groups {
		if group.Style == style {
			return group
		}
	}
	return nil
}

// newCaptionPipelineWorkflow assembles the workflow struct shared by both
// constructors.
func newCaptionPipelineWorkflow(
	config *cloud.Config,
	manifestReader cloud.ObjectReader,
	classifierModel cloud.ContentGenerator,
	generatorModel cloud.ContentGenerator) *CaptionPipelineWorkflow {
	maxAttempts := config.Pipeline.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	modelIdentifier := ""
	if agent, ok := config.AgentModels[cloud.AgentKeyGenerator]; ok {
		modelIdentifier = agent.Model
	}
	return &CaptionPipelineWorkflow{
		BaseCommand:     *cor.NewBaseCommand("caption-pipeline"),
		config:          config,
		manifestReader:  manifestReader,
		classifierModel: classifierModel,
		generatorModel:  generatorModel,
		modelIdentifier: modelIdentifier,
		requestTimeout:  time.Duration(config.Pipeline.RequestTimeoutSeconds) * time.Second,
		maxAttempts:     maxAttempts,
	}
}

// NewCaptionPipeline is the constructor for the fully wired production
// workflow.
//
// Inputs:
//   - config: The application's overall configuration.
//   - serviceClients: A struct containing initialized clients for GCP services.
//
// Outputs:
//   - *CaptionPipelineWorkflow: A pointer to the initialized workflow.
func NewCaptionPipeline(config *cloud.Config, serviceClients *cloud.ServiceClients) *CaptionPipelineWorkflow {
	pipeline := newCaptionPipelineWorkflow(
		config,
		&cloud.GCSObjectReader{Client: serviceClients.StorageClient},
		serviceClients.AgentModels[cloud.AgentKeyClassifier],
		serviceClients.AgentModels[cloud.AgentKeyGenerator])
	pipeline.serviceClients = serviceClients
	pipeline.initializeChains()
	return pipeline
}

// NewCaptionPipelineForModels builds a sink-free workflow around explicit
// model and manifest implementations. The finish chain stops after report
// assembly, so the pipeline runs without any cloud clients. Used by tests
// and local tooling.
//
// Inputs:
//   - config: The application's overall configuration.
//   - manifestReader: The source of segment manifests.
//   - classifierModel: The model used for classification.
//   - generatorModel: The model used for generation.
//
// Outputs:
//   - *CaptionPipelineWorkflow: A pointer to the initialized workflow.
func NewCaptionPipelineForModels(
	config *cloud.Config,
	manifestReader cloud.ObjectReader,
	classifierModel cloud.ContentGenerator,
	generatorModel cloud.ContentGenerator) *CaptionPipelineWorkflow {
	pipeline := newCaptionPipelineWorkflow(config, manifestReader, classifierModel, generatorModel)
	pipeline.initializeChains()
	return pipeline
}
