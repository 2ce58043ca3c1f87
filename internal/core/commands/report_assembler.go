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

// Package commands - This file defines the ReportAssembler command plus the
// run-scoped issue and log accumulators shared by every command in the
// pipeline.
//
// The assembler is the single place the final report is built. Whatever
// happened upstream, every run that reaches it produces exactly one report:
// success when at least one valid copy survived, failure otherwise, with
// the issues collected along the way explaining why.
package commands

import (
	"fmt"
	"sort"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetIssuesParamName returns the well-known context key for the run's
// accumulated issue strings.
func GetIssuesParamName() string {
	return "__ISSUES__"
}

// GetLogsParamName returns the well-known context key for the run's
// accumulated log lines.
func GetLogsParamName() string {
	return "__LOGS__"
}

// GetFinalReportParamName returns the well-known context key holding the
// assembled final report.
func GetFinalReportParamName() string {
	return "__FINAL_REPORT__"
}

// AddIssue appends a non-fatal finding to the run's issue list. Issues ride
// the chain context and end up verbatim in the final report.
func AddIssue(context cor.Context, issue string) {
	issues, _ := context.Get(GetIssuesParamName()).([]string)
	context.Add(GetIssuesParamName(), append(issues, issue))
}

// AddLog appends a progress line to the run's log list for the final
// report.
func AddLog(context cor.Context, entry string) {
	logs, _ := context.Get(GetLogsParamName()).([]string)
	context.Add(GetLogsParamName(), append(logs, entry))
}

// GetIssues returns the run's accumulated issues, possibly nil.
func GetIssues(context cor.Context) []string {
	issues, _ := context.Get(GetIssuesParamName()).([]string)
	return issues
}

// GetLogs returns the run's accumulated log lines, possibly nil.
func GetLogs(context cor.Context) []string {
	logs, _ := context.Get(GetLogsParamName()).([]string)
	return logs
}

// ReportAssembler is a command that folds the run's state into the final
// report consumed by the sinks and the dashboard.
type ReportAssembler struct {
	cor.BaseCommand
	modelIdentifier string // The generator model name recorded on the report.
}

// NewReportAssembler is the constructor for the ReportAssembler command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - modelIdentifier: The generator model name to record on reports.
//
// Outputs:
//   - *ReportAssembler: A pointer to the newly instantiated command.
func NewReportAssembler(name string, modelIdentifier string) *ReportAssembler {
	return &ReportAssembler{
		BaseCommand:     *cor.NewBaseCommandWithParams(name, GetSegmentsParamName(), GetFinalReportParamName()),
		modelIdentifier: modelIdentifier,
	}
}

// Execute assembles the final report from whatever the run produced.
//
// Logic Flow:
//  1. Identity: the correlation id comes from the caption request, the
//     model identifier from configuration. A requested model override that
//     was not honored is noted in the logs rather than reported as used.
//  2. Copies are sorted by clip id; success means at least one valid copy.
//  3. Classification metadata (per-style distribution over generated
//     copies, including zero counts, plus coverage) is attached when the
//     classifier ran; generation metadata lists the clip ids that never
//     received a usable caption.
//  4. The quality summary reflects the attempt the workflow settled on and
//     the number of attempts spent getting there.
func (c *ReportAssembler) Execute(context cor.Context) {
	request := context.Get(GetCaptionRequestParamName()).(*model.CaptionRequest)
	segments := context.Get(c.GetInputParam()).([]*model.ClipSegment)

	report := model.NewFinalReport(request.CorrelationId, c.modelIdentifier)
	if request.Model != "" && request.Model != c.modelIdentifier {
		AddLog(context, fmt.Sprintf("requested model %q, generated with configured model %q", request.Model, c.modelIdentifier))
	}

	copies, _ := context.Get(GetMergedCopiesParamName()).([]*model.GeneratedCopy)
	clips := make([]*model.GeneratedCopy, 0, len(copies))
	for _, copy := range copies {
		if copy != nil {
			clips = append(clips, copy)
		}
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].ClipId < clips[j].ClipId })

	report.TotalClips = len(segments)
	report.Clips = clips
	report.Success = len(clips) > 0

	if classifications, ok := context.Get(GetClassificationsParamName()).([]*model.ClassificationResult); ok {
		coverage, _ := context.Get(GetCoverageParamName()).(float64)
		distribution := make(map[string]int, len(model.AllStyles()))
		for _, style := range model.AllStyles() {
			distribution[style] = 0
		}
		for _, clip := range clips {
			distribution[clip.Style]++
		}
		report.ClassificationMetadata = &model.ClassificationMetadata{
			Classifications: classifications,
			Distribution:    distribution,
			Coverage:        coverage,
		}
	}

	if len(segments) > 0 {
		generated := make(map[int]bool, len(clips))
		for _, clip := range clips {
			generated[clip.ClipId] = true
		}
		missing := make([]int, 0)
		for _, segment := range segments {
			if !generated[segment.Id] {
				missing = append(missing, segment.Id)
			}
		}
		report.GenerationMetadata = &model.GenerationMetadata{
			Incomplete:     len(missing) > 0,
			TotalClips:     len(segments),
			GeneratedClips: len(clips),
			MissingClips:   missing,
		}
	}

	if metrics, ok := context.Get(GetQualityParamName()).(*model.QualityMetrics); ok && metrics != nil {
		attempts := 0
		if history, ok := context.Get(GetAttemptHistoryParamName()).([]*model.AttemptRecord); ok {
			attempts = len(history)
		}
		report.Quality = &model.QualitySummary{
			AverageEngagement:     metrics.AverageEngagement,
			AverageViralPotential: metrics.AverageViralPotential,
			Attempts:              attempts,
		}
	}

	if issues := GetIssues(context); len(issues) > 0 {
		report.Issues = issues
	}
	if logs := GetLogs(context); len(logs) > 0 {
		report.Logs = logs
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), report)
	context.Add(cor.CtxOut, report)
}
