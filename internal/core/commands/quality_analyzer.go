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
	"math"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetMergedCopiesParamName returns the well-known context key holding the
// merged copy set under analysis. The workflow refreshes this key every
// attempt with the union of carried-forward and newly validated copies.
func GetMergedCopiesParamName() string {
	return "__MERGED_COPIES__"
}

// GetQualityParamName returns the well-known context key holding the
// quality metrics of the current attempt.
func GetQualityParamName() string {
	return "__QUALITY__"
}

// QualityAnalyzer is a command that scores an attempt's copy set and
// diagnoses which copies fall below the quality floor.
//
// The analyzer is observational: it computes means, flags weak copies, and
// never raises an error. An empty copy set is itself a finding, reported
// with zero means and an issue.
type QualityAnalyzer struct {
	cor.BaseCommand
	lowScoreFloor float64 // Engagement below this value marks a copy for diagnosis.
}

// NewQualityAnalyzer is the constructor for the QualityAnalyzer command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - lowScoreFloor: The engagement floor (defaults to 6.5).
//
// Outputs:
//   - *QualityAnalyzer: A pointer to the newly instantiated command.
func NewQualityAnalyzer(name string, lowScoreFloor float64) *QualityAnalyzer {
	if lowScoreFloor <= 0 {
		lowScoreFloor = 6.5
	}
	return &QualityAnalyzer{
		BaseCommand:   *cor.NewBaseCommandWithParams(name, GetMergedCopiesParamName(), GetQualityParamName()),
		lowScoreFloor: lowScoreFloor,
	}
}

// Execute computes the attempt's quality metrics and publishes them.
func (c *QualityAnalyzer) Execute(context cor.Context) {
	copies := context.Get(c.GetInputParam()).([]*model.GeneratedCopy)

	metrics, issues := ComputeQuality(copies, c.lowScoreFloor)
	for _, issue := range issues {
		AddIssue(context, issue)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), metrics)
	context.Add(cor.CtxOut, metrics)
}

// ComputeQuality scores a copy set.
//
// Logic Flow:
//  1. An empty set yields zero means plus an issue; there is nothing else
//     to measure.
//  2. Mean engagement and mean viral potential are computed over all the
//     copies and rounded to two decimal places.
//  3. Every copy whose engagement score sits below the floor is diagnosed
//     with the most likely cause, checked in order: a low hook strength
//     reads as a weak hook, a truncation flag as an over-length caption, a
//     topics flag as generic topics. A weak hook is also the default
//     diagnosis, since engagement is hook-driven.
//
// Inputs:
//   - copies: The merged copy set under analysis.
//   - lowScoreFloor: The engagement floor for per-copy diagnosis.
//
// Outputs:
//   - *model.QualityMetrics: The computed metrics.
//   - []string: Issues to record on the run, possibly empty.
func ComputeQuality(copies []*model.GeneratedCopy, lowScoreFloor float64) (*model.QualityMetrics, []string) {
	if len(copies) == 0 {
		return &model.QualityMetrics{}, []string{"no valid copies to analyze"}
	}

	var engagementTotal, viralTotal float64
	perSegmentIssues := make(map[int]string)
	for _, copy := range copies {
		if copy == nil || copy.Metadata == nil {
			continue
		}
		engagementTotal += copy.Metadata.EngagementScore
		viralTotal += copy.Metadata.ViralPotential
		if copy.Metadata.EngagementScore < lowScoreFloor {
			perSegmentIssues[copy.ClipId] = diagnoseCopy(copy)
		}
	}

	count := float64(len(copies))
	metrics := &model.QualityMetrics{
		AverageEngagement:     round2(engagementTotal / count),
		AverageViralPotential: round2(viralTotal / count),
	}
	if len(perSegmentIssues) > 0 {
		metrics.PerSegmentIssues = perSegmentIssues
	}
	return metrics, nil
}

// diagnoseCopy names the most likely reason a copy scored below the floor.
func diagnoseCopy(copy *model.GeneratedCopy) string {
	switch {
	case copy.Metadata.HookStrength == model.HookLow:
		return model.IssueWeakHooks
	case copy.HasFlag(model.FlagTruncated):
		return model.IssueOverLength
	case copy.HasFlag(model.FlagTooFewTopics):
		return model.IssueGenericTopics
	default:
		return model.IssueWeakHooks
	}
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
