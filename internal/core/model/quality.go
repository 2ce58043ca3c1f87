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

// Package model defines the core data structures for the caption pipeline.
// This file, `quality.go`, contains the quality-gate types: aggregate
// metrics, the retry state machine vocabulary, and the per-attempt record
// used to select the best attempt when retries are exhausted.
package model

// Validation flags recorded on a GeneratedCopy by the validator. The
// analyzer and retry planner read them to diagnose what went wrong with a
// low-scoring attempt.
const (
	FlagTruncated    = "truncated"      // Caption exceeded the length limit and was repaired.
	FlagTooFewTopics = "too_few_topics" // Fewer primary topics than the configured minimum.
)

// Issue classes the retry planner can diagnose. Each class selects one
// refinement directive for the next generation attempt.
const (
	IssueWeakHooks     = "weak_hooks"
	IssueOverLength    = "over_length"
	IssueGenericTopics = "generic_topics"
)

// RefinementDirective returns the corrective instruction appended to the
// generation prompt when the planner schedules a retry for the given
// issue class.
func RefinementDirective(issueClass string) string {
	switch issueClass {
	case IssueWeakHooks:
		return "The previous captions opened too softly. Rewrite every caption to lead with its single strongest hook in the first five words."
	case IssueOverLength:
		return "The previous captions ran long and were truncated. Keep every caption comfortably under 150 characters with no trailing hashtag chains."
	case IssueGenericTopics:
		return "The previous captions used generic topics. Replace them with specific, concrete topics drawn directly from the transcript."
	default:
		return "Improve the weakest captions from the previous attempt while keeping the strong ones intact."
	}
}

// The retry planner's state machine. Every attempt walks
// GENERATED -> VALIDATED -> ANALYZED and then terminates in exactly one
// of ACCEPTED, RETRY, or EXHAUSTED.
const (
	StateGenerated = "GENERATED"
	StateValidated = "VALIDATED"
	StateAnalyzed  = "ANALYZED"
	StateAccepted  = "ACCEPTED"
	StateRetry     = "RETRY"
	StateExhausted = "EXHAUSTED"
)

// Retry scopes. A group-scoped retry regenerates only the style group the
// quality issues are isolated to; a full retry regenerates every group.
const (
	ScopeFull  = "full"
	ScopeGroup = "group"
)

// QualityMetrics is the analyzer's aggregate view of one attempt's valid
// copies. Averages are arithmetic means rounded to two decimals, or zero
// when the copy list is empty. PerSegmentIssues maps the clip ids that
// scored below the engagement floor to their diagnosed issue class.
type QualityMetrics struct {
	AverageEngagement     float64        `json:"averageEngagement"`
	AverageViralPotential float64        `json:"averageViralPotential"`
	PerSegmentIssues      map[int]string `json:"perSegmentIssues,omitempty"`
}

// RetryDecision is the outcome of one planner transition. State is one of
// the terminal states above; the remaining fields are only meaningful
// when State == StateRetry.
type RetryDecision struct {
	State       string `json:"state"`
	Scope       string `json:"scope,omitempty"`       // full or group
	TargetStyle string `json:"targetStyle,omitempty"` // style group to regenerate when Scope == group
	IssueClass  string `json:"issueClass,omitempty"`  // dominant diagnosed issue
	Directive   string `json:"-"`                     // refinement directive for the next attempt
}

// AttemptRecord snapshots one complete generation attempt after analysis.
// The history of records is what BestAttempt selects from when retries
// are exhausted without meeting the quality gate.
type AttemptRecord struct {
	Attempt int              `json:"attempt"`
	Copies  []*GeneratedCopy `json:"-"`
	Metrics *QualityMetrics  `json:"metrics"`
}

// BestAttempt returns the strongest attempt on record: highest average
// engagement, ties broken by more valid copies, remaining ties by the
// earliest attempt. Attempts with zero copies are never selected; nil is
// returned when no attempt produced a copy.
func BestAttempt(attempts []*AttemptRecord) *AttemptRecord {
	var best *AttemptRecord
	for _, a := range attempts {
		if a == nil || len(a.Copies) == 0 {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		if a.Metrics.AverageEngagement > best.Metrics.AverageEngagement {
			best = a
			continue
		}
		if a.Metrics.AverageEngagement == best.Metrics.AverageEngagement && len(a.Copies) > len(best.Copies) {
			best = a
		}
	}
	return best
}
