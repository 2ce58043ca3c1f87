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

// Package commands - This file defines the RetryPlanner command, the
// decision point of the generation loop.
//
// Each run moves through an explicit attempt state machine:
//
//	GENERATED -> VALIDATED -> ANALYZED -> ACCEPTED | RETRY | EXHAUSTED
//
// The workflow drives the first three states by running the generator,
// validator, and analyzer; the planner owns the terminal decision. Keeping
// the decision in one pure function makes every transition testable without
// a model call.
package commands

import (
	"fmt"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetAttemptCountParamName returns the well-known context key holding the
// one-based number of the attempt under evaluation.
func GetAttemptCountParamName() string {
	return "__ATTEMPT_COUNT__"
}

// GetAttemptHistoryParamName returns the well-known context key holding the
// attempt records accumulated across the generation loop.
func GetAttemptHistoryParamName() string {
	return "__ATTEMPT_HISTORY__"
}

// GetRetryDecisionParamName returns the well-known context key holding the
// planner's decision for the attempt under evaluation.
func GetRetryDecisionParamName() string {
	return "__RETRY_DECISION__"
}

// RetryPlanner is a command that decides whether an analyzed attempt is
// accepted, retried, or the run's retry budget is exhausted.
type RetryPlanner struct {
	cor.BaseCommand
	acceptanceThreshold float64 // Mean engagement at or above this accepts the attempt.
	maxAttempts         int     // Total attempts allowed, including the first.
}

// NewRetryPlanner is the constructor for the RetryPlanner command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - acceptanceThreshold: The mean engagement acceptance bar (defaults to 7.5).
//   - maxAttempts: The attempt budget (defaults to 3).
//
// Outputs:
//   - *RetryPlanner: A pointer to the newly instantiated command.
func NewRetryPlanner(name string, acceptanceThreshold float64, maxAttempts int) *RetryPlanner {
	if acceptanceThreshold <= 0 {
		acceptanceThreshold = 7.5
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryPlanner{
		BaseCommand:         *cor.NewBaseCommandWithParams(name, GetQualityParamName(), GetRetryDecisionParamName()),
		acceptanceThreshold: acceptanceThreshold,
		maxAttempts:         maxAttempts,
	}
}

// Execute evaluates the analyzed attempt and publishes the decision.
func (c *RetryPlanner) Execute(context cor.Context) {
	metrics := context.Get(c.GetInputParam()).(*model.QualityMetrics)
	copies := context.Get(GetMergedCopiesParamName()).([]*model.GeneratedCopy)
	attempt := context.Get(GetAttemptCountParamName()).(int)

	decision := PlanTransition(TransitionInput{
		Metrics:             metrics,
		Copies:              copies,
		Attempt:             attempt,
		AcceptanceThreshold: c.acceptanceThreshold,
		MaxAttempts:         c.maxAttempts,
	})

	if decision.State == model.StateRetry {
		AddLog(context, fmt.Sprintf("attempt %d below threshold %.2f, retrying scope=%s issue=%s",
			attempt, c.acceptanceThreshold, decision.Scope, decision.IssueClass))
	} else {
		AddLog(context, fmt.Sprintf("attempt %d resolved as %s", attempt, decision.State))
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), decision)
	context.Add(cor.CtxOut, decision)
}

// TransitionInput carries everything PlanTransition needs to decide the
// fate of one analyzed attempt.
type TransitionInput struct {
	Metrics             *model.QualityMetrics  // The attempt's quality metrics.
	Copies              []*model.GeneratedCopy // The merged copy set the metrics describe.
	Attempt             int                    // One-based attempt number.
	AcceptanceThreshold float64                // Mean engagement acceptance bar.
	MaxAttempts         int                    // Total attempt budget.
}

// PlanTransition decides the terminal state of an analyzed attempt.
//
// Logic Flow:
//  1. A non-empty copy set whose mean engagement meets the threshold is
//     ACCEPTED.
//  2. Otherwise, an attempt at or past the budget is EXHAUSTED; the report
//     later falls back to the best attempt seen.
//  3. Otherwise the attempt is RETRY. The dominant issue class across the
//     flagged copies picks the refinement directive, and the retry scope
//     narrows to a single style group when every flagged copy belongs to
//     the same style; anything less clear-cut regenerates everything.
//
// Inputs:
//   - in: The attempt's metrics, copies, and budget configuration.
//
// Outputs:
//   - *model.RetryDecision: The decision, including scope and directive on RETRY.
func PlanTransition(in TransitionInput) *model.RetryDecision {
	if len(in.Copies) > 0 && in.Metrics != nil && in.Metrics.AverageEngagement >= in.AcceptanceThreshold {
		return &model.RetryDecision{State: model.StateAccepted}
	}
	if in.Attempt >= in.MaxAttempts {
		return &model.RetryDecision{State: model.StateExhausted}
	}

	issueClass := dominantIssueClass(in.Metrics)
	scope, targetStyle := retryScope(in.Metrics, in.Copies)
	return &model.RetryDecision{
		State:       model.StateRetry,
		Scope:       scope,
		TargetStyle: targetStyle,
		IssueClass:  issueClass,
		Directive:   model.RefinementDirective(issueClass),
	}
}

// dominantIssueClass returns the most frequent per-segment issue class.
// Ties resolve in the fixed order weak hooks, over length, generic topics,
// and a run with no flagged copies defaults to weak hooks, the usual reason
// an average lands below the threshold.
func dominantIssueClass(metrics *model.QualityMetrics) string {
	counts := make(map[string]int)
	if metrics != nil {
		for _, issueClass := range metrics.PerSegmentIssues {
			counts[issueClass]++
		}
	}

	best := model.IssueWeakHooks
	bestCount := 0
	for _, issueClass := range []string{model.IssueWeakHooks, model.IssueOverLength, model.IssueGenericTopics} {
		if counts[issueClass] > bestCount {
			best = issueClass
			bestCount = counts[issueClass]
		}
	}
	return best
}

// retryScope narrows a retry to one style group when every flagged copy
// belongs to the same style. Any ambiguity, including a flagged clip whose
// style is unknown, widens the retry to the full run.
func retryScope(metrics *model.QualityMetrics, copies []*model.GeneratedCopy) (string, string) {
	if metrics == nil || len(metrics.PerSegmentIssues) == 0 {
		return model.ScopeFull, ""
	}

	styleByClip := make(map[int]string, len(copies))
	for _, copy := range copies {
		if copy != nil {
			styleByClip[copy.ClipId] = copy.Style
		}
	}

	targetStyle := ""
	for clipId := range metrics.PerSegmentIssues {
		style, ok := styleByClip[clipId]
		if !ok || style == "" {
			return model.ScopeFull, ""
		}
		if targetStyle == "" {
			targetStyle = style
			continue
		}
		if style != targetStyle {
			return model.ScopeFull, ""
		}
	}
	return model.ScopeGroup, targetStyle
}
