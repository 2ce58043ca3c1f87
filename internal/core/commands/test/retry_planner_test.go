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

package commands_test

import (
	"testing"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/commands"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	acceptanceThreshold = 7.5
	maxAttempts         = 3
)

// styledCopy builds a copy carrying only the fields the planner reads.
func styledCopy(clipId int, style string) *model.GeneratedCopy {
	return &model.GeneratedCopy{ClipId: clipId, Copy: "validated caption text #AICDMX", Style: style}
}

// TestPlanTransitionAccepts verifies that a non-empty copy set at or above
// the threshold resolves to ACCEPTED.
func TestPlanTransitionAccepts(t *testing.T) {
	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             &model.QualityMetrics{AverageEngagement: 7.5},
		Copies:              []*model.GeneratedCopy{styledCopy(1, model.StyleViral)},
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	assert.Equal(t, model.StateAccepted, decision.State)
}

// TestPlanTransitionNeverAcceptsEmptySet verifies that an empty copy set
// cannot be accepted regardless of its metrics, and retries full scope.
func TestPlanTransitionNeverAcceptsEmptySet(t *testing.T) {
	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             &model.QualityMetrics{AverageEngagement: 9.9},
		Copies:              nil,
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	assert.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.ScopeFull, decision.Scope)
	assert.Equal(t, model.IssueWeakHooks, decision.IssueClass)
}

// TestPlanTransitionExhaustsAtBudget verifies that a below-threshold
// attempt at the budget resolves to EXHAUSTED instead of another retry.
func TestPlanTransitionExhaustsAtBudget(t *testing.T) {
	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             &model.QualityMetrics{AverageEngagement: 6.2},
		Copies:              []*model.GeneratedCopy{styledCopy(1, model.StyleStorytelling)},
		Attempt:             maxAttempts,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	assert.Equal(t, model.StateExhausted, decision.State)
}

// TestPlanTransitionScopedRetry verifies that a retry narrows to a single
// style group when every flagged clip belongs to the same style, and that
// the decision carries the refinement directive for the dominant issue.
func TestPlanTransitionScopedRetry(t *testing.T) {
	copies := []*model.GeneratedCopy{
		styledCopy(1, model.StyleEducational),
		styledCopy(2, model.StyleViral),
		styledCopy(3, model.StyleStorytelling),
	}
	metrics := &model.QualityMetrics{
		AverageEngagement: 7.15,
		PerSegmentIssues:  map[int]string{2: model.IssueWeakHooks},
	}

	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             metrics,
		Copies:              copies,
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	require.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.ScopeGroup, decision.Scope)
	assert.Equal(t, model.StyleViral, decision.TargetStyle)
	assert.Equal(t, model.IssueWeakHooks, decision.IssueClass)
	assert.Equal(t, model.RefinementDirective(model.IssueWeakHooks), decision.Directive)
}

// TestPlanTransitionFullRetryAcrossStyles verifies that flagged clips in
// more than one style widen the retry to the full run.
func TestPlanTransitionFullRetryAcrossStyles(t *testing.T) {
	copies := []*model.GeneratedCopy{
		styledCopy(1, model.StyleEducational),
		styledCopy(2, model.StyleViral),
	}
	metrics := &model.QualityMetrics{
		AverageEngagement: 6.0,
		PerSegmentIssues: map[int]string{
			1: model.IssueOverLength,
			2: model.IssueWeakHooks,
		},
	}

	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             metrics,
		Copies:              copies,
		Attempt:             2,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	require.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.ScopeFull, decision.Scope)
	assert.Empty(t, decision.TargetStyle)
}

// TestPlanTransitionFullRetryOnUnknownStyle verifies that a flagged clip
// whose style cannot be resolved from the copy set widens the retry to the
// full run rather than guessing a group.
func TestPlanTransitionFullRetryOnUnknownStyle(t *testing.T) {
	metrics := &model.QualityMetrics{
		AverageEngagement: 6.0,
		PerSegmentIssues:  map[int]string{9: model.IssueWeakHooks},
	}

	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics:             metrics,
		Copies:              []*model.GeneratedCopy{styledCopy(1, model.StyleViral)},
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})

	require.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.ScopeFull, decision.Scope)
}

// TestPlanTransitionDominantIssue verifies majority and tie handling when
// picking the issue class that drives the refinement directive.
func TestPlanTransitionDominantIssue(t *testing.T) {
	copies := []*model.GeneratedCopy{
		styledCopy(1, model.StyleViral),
		styledCopy(2, model.StyleViral),
		styledCopy(3, model.StyleViral),
	}

	// Two over-length diagnoses outvote one weak hook.
	decision := commands.PlanTransition(commands.TransitionInput{
		Metrics: &model.QualityMetrics{
			AverageEngagement: 6.0,
			PerSegmentIssues: map[int]string{
				1: model.IssueOverLength,
				2: model.IssueOverLength,
				3: model.IssueWeakHooks,
			},
		},
		Copies:              copies,
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})
	require.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.IssueOverLength, decision.IssueClass)
	assert.Equal(t, model.RefinementDirective(model.IssueOverLength), decision.Directive)

	// A tie resolves in the fixed order, so weak hooks wins.
	decision = commands.PlanTransition(commands.TransitionInput{
		Metrics: &model.QualityMetrics{
			AverageEngagement: 6.0,
			PerSegmentIssues: map[int]string{
				1: model.IssueOverLength,
				2: model.IssueWeakHooks,
			},
		},
		Copies:              copies,
		Attempt:             1,
		AcceptanceThreshold: acceptanceThreshold,
		MaxAttempts:         maxAttempts,
	})
	require.Equal(t, model.StateRetry, decision.State)
	assert.Equal(t, model.IssueWeakHooks, decision.IssueClass)
}
