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
	"fmt"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// GetStyleGroupsParamName returns the well-known context key holding the
// ordered style groups for the current run.
func GetStyleGroupsParamName() string {
	return "__STYLE_GROUPS__"
}

// StyleGrouper is a command that partitions the run's segments into
// per-style groups based on the classification results.
//
// Grouping is deterministic: groups are emitted in the fixed style order so
// the same classifications always produce the same generation batches.
// Segments that never received a classification either join the configured
// fallback style or, when fallback is disabled, sit the run out and are
// reported as an issue.
type StyleGrouper struct {
	cor.BaseCommand
	fallbackStyle   string // The style unclassified segments join.
	fallbackEnabled bool   // When false, unclassified segments are excluded instead.
}

// NewStyleGrouper is the constructor for the StyleGrouper command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - fallbackStyle: The style for unclassified segments. An empty or
//     unrecognized value falls back to the storytelling style.
//   - fallbackEnabled: Whether unclassified segments join the fallback
//     style or are excluded from generation.
//
// Outputs:
//   - *StyleGrouper: A pointer to the newly instantiated command.
func NewStyleGrouper(name string, fallbackStyle string, fallbackEnabled bool) *StyleGrouper {
	return &StyleGrouper{
		BaseCommand:     *cor.NewBaseCommandWithParams(name, GetClassificationsParamName(), GetStyleGroupsParamName()),
		fallbackStyle:   fallbackStyle,
		fallbackEnabled: fallbackEnabled,
	}
}

// Execute partitions the segments into style groups and records any
// exclusions as issues. A caption request may override the configured
// fallback style for its own run.
func (c *StyleGrouper) Execute(context cor.Context) {
	classifications := context.Get(c.GetInputParam()).([]*model.ClassificationResult)
	segments := context.Get(GetSegmentsParamName()).([]*model.ClipSegment)

	fallbackStyle := c.fallbackStyle
	if request, ok := context.Get(GetCaptionRequestParamName()).(*model.CaptionRequest); ok && request.FallbackStyle != "" {
		fallbackStyle = request.FallbackStyle
	}

	groups, excluded := GroupByStyle(segments, classifications, fallbackStyle, c.fallbackEnabled)
	if len(excluded) > 0 {
		AddIssue(context, fmt.Sprintf("%d unclassified segment(s) excluded from generation: %v", len(excluded), excluded))
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), groups)
	context.Add(cor.CtxOut, groups)
}

// GroupByStyle partitions segments into style groups using the supplied
// classifications.
//
// Logic Flow:
//  1. Classifications are indexed by segment id; the segment order inside
//     each group follows the input segment order.
//  2. A segment without a classification resolves to the fallback style
//     when fallback is enabled, otherwise its id is returned as excluded.
//  3. Groups are emitted in the fixed style order and only when non-empty,
//     so generation never issues a request for an empty group.
//
// The function is pure: the same inputs always yield the same groups, which
// keeps retried runs reproducible.
//
// Inputs:
//   - segments: The ordered segment list for the run.
//   - classifications: The per-segment classification results.
//   - fallbackStyle: The style for unclassified segments; normalized, with
//     the storytelling style as the final default.
//   - fallbackEnabled: Whether unclassified segments are grouped or excluded.
//
// Outputs:
//   - []*model.StyleGroup: The non-empty groups in fixed style order.
//   - []int: The ids of segments excluded from generation.
func GroupByStyle(
	segments []*model.ClipSegment,
	classifications []*model.ClassificationResult,
	fallbackStyle string,
	fallbackEnabled bool) ([]*model.StyleGroup, []int) {
	fallback := model.NormalizeStyle(fallbackStyle)
	if fallback == "" {
		fallback = model.StyleStorytelling
	}

	styleById := make(map[int]string, len(classifications))
	for _, classification := range classifications {
		if classification == nil {
			continue
		}
		if _, ok := styleById[classification.SegmentId]; !ok {
			styleById[classification.SegmentId] = classification.Style
		}
	}

	membership := make(map[string][]*model.ClipSegment)
	excluded := make([]int, 0)
	for _, segment := range segments {
		style, ok := styleById[segment.Id]
		if !ok || style == "" {
			if !fallbackEnabled {
				excluded = append(excluded, segment.Id)
				continue
			}
			style = fallback
		}
		membership[style] = append(membership[style], segment)
	}

	groups := make([]*model.StyleGroup, 0, len(membership))
	for _, style := range model.AllStyles() {
		if members := membership[style]; len(members) > 0 {
			groups = append(groups, &model.StyleGroup{Style: style, Segments: members})
		}
	}
	return groups, excluded
}
