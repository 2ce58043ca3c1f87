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

// Package commands - This file defines the CopyValidator command, which
// normalizes caption drafts into canonical, constraint-satisfying copies.
//
// The validator follows a repair-first policy: it fixes what it can
// (over-length captions, misplaced brand tags, out-of-range scores,
// unrecognized enum values, duplicate topics) and only excludes a draft
// when nothing usable remains, recording the exclusion as an issue. It
// never fails the chain; a run with zero valid copies is still reported.
package commands

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/cor"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
)

// Caption constraints applied by the validator.
const (
	CaptionMinLength = 20  // Captions shorter than this cannot be repaired.
	CaptionMaxLength = 150 // Captions longer than this are truncated down.
	MinPrimaryTopics = 3   // Fewer topics than this flags the copy.
	MaxPrimaryTopics = 5   // Topics beyond this are cut.
)

// GetValidCopiesParamName returns the well-known context key holding the
// validated copies of the current attempt.
func GetValidCopiesParamName() string {
	return "__VALID_COPIES__"
}

// CopyValidator is a command that normalizes and repairs the raw drafts of
// one generation attempt.
type CopyValidator struct {
	cor.BaseCommand
	brandTag string // The brand hashtag every caption must end with.
}

// NewCopyValidator is the constructor for the CopyValidator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - brandTag: The required brand hashtag (defaults to "#AICDMX").
//
// Outputs:
//   - *CopyValidator: A pointer to the newly instantiated command.
func NewCopyValidator(name string, brandTag string) *CopyValidator {
	if brandTag == "" {
		brandTag = "#AICDMX"
	}
	return &CopyValidator{
		BaseCommand: *cor.NewBaseCommandWithParams(name, GetDraftsParamName(), GetValidCopiesParamName()),
		brandTag:    brandTag,
	}
}

// Execute normalizes every draft of the attempt, collecting the repaired
// copies and recording exclusions as issues.
func (c *CopyValidator) Execute(context cor.Context) {
	drafts := context.Get(c.GetInputParam()).([]*model.GeneratedCopy)
	segments := context.Get(GetSegmentsParamName()).([]*model.ClipSegment)

	segmentById := make(map[int]*model.ClipSegment, len(segments))
	for _, segment := range segments {
		segmentById[segment.Id] = segment
	}

	valid := make([]*model.GeneratedCopy, 0, len(drafts))
	for _, draft := range drafts {
		if draft == nil {
			continue
		}
		normalized, reason, ok := NormalizeCopy(draft, segmentById[draft.ClipId], c.brandTag)
		if !ok {
			AddIssue(context, fmt.Sprintf("clip %d dropped in validation: %s", draft.ClipId, reason))
			continue
		}
		valid = append(valid, normalized)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), valid)
	context.Add(cor.CtxOut, valid)
}

// NormalizeCopy repairs a single draft into canonical form.
//
// Logic Flow:
//  1. The caption is repaired: whitespace collapsed, the brand tag moved to
//     the final position (appended when missing), and over-length text
//     truncated via RepairCaption. A caption that is empty or still shorter
//     than the minimum after repair is unrepairable.
//  2. Metadata is normalized: sentiment and hook strength resolve through
//     their vocabularies, scores clamp into range, topics are de-duplicated
//     and capped, and the thumbnail timestamp clamps into the segment's
//     duration. Missing metadata normalizes from zero values.
//  3. Repairs that lost content are recorded as validation flags on the
//     copy so the quality analyzer can diagnose them later.
//
// Inputs:
//   - draft: The raw draft to normalize.
//   - segment: The segment the draft belongs to; may be nil, in which case
//     the thumbnail timestamp only clamps at zero.
//   - brandTag: The required brand hashtag.
//
// Outputs:
//   - *model.GeneratedCopy: The normalized copy, nil when unrepairable.
//   - string: The exclusion reason when the draft is unrepairable.
//   - bool: True when the copy is usable.
func NormalizeCopy(draft *model.GeneratedCopy, segment *model.ClipSegment, brandTag string) (*model.GeneratedCopy, string, bool) {
	if draft == nil {
		return nil, "missing draft", false
	}
	caption := strings.TrimSpace(draft.Copy)
	if caption == "" {
		return nil, "empty caption", false
	}

	repaired, truncated := RepairCaption(caption, brandTag, CaptionMaxLength)
	if utf8.RuneCountInString(repaired) < CaptionMinLength {
		return nil, fmt.Sprintf("caption shorter than %d characters", CaptionMinLength), false
	}

	source := draft.Metadata
	if source == nil {
		source = &model.CopyMetadata{}
	}
	topics, tooFew := model.NormalizeTopics(source.PrimaryTopics, MinPrimaryTopics, MaxPrimaryTopics)

	// The thumbnail cannot point past the end of the clip.
	maxThumbnail := source.SuggestedThumbnailTimestamp
	if maxThumbnail < 0 {
		maxThumbnail = 0
	}
	if segment != nil && maxThumbnail > segment.DurationSeconds {
		maxThumbnail = segment.DurationSeconds
	}

	metadata := &model.CopyMetadata{
		Sentiment:                   model.NormalizeSentiment(source.Sentiment),
		SentimentScore:              model.ClampScore(source.SentimentScore, 0, 1),
		EngagementScore:             model.ClampScore(source.EngagementScore, 1, 10),
		SuggestedThumbnailTimestamp: maxThumbnail,
		PrimaryTopics:               topics,
		HookStrength:                model.NormalizeHookStrength(source.HookStrength),
		ViralPotential:              model.ClampScore(source.ViralPotential, 1, 10),
	}

	flags := make([]string, 0, 2)
	if truncated {
		flags = append(flags, model.FlagTruncated)
	}
	if tooFew {
		flags = append(flags, model.FlagTooFewTopics)
	}

	return &model.GeneratedCopy{
		ClipId:          draft.ClipId,
		Copy:            repaired,
		Style:           draft.Style,
		Metadata:        metadata,
		ValidationFlags: flags,
	}, "", true
}

// RepairCaption enforces the caption length and brand tag constraints.
//
// Logic Flow:
//  1. The caption is split into whitespace-delimited tokens and every
//     occurrence of the brand tag is pulled out; exactly one is appended
//     back as the final token.
//  2. While the caption exceeds the maximum length, trailing decorative
//     hashtags are removed one at a time, nearest the end first,
//     re-measuring after each removal.
//  3. When no removable hashtags remain and the caption is still too long,
//     the message text itself is cut to fit ahead of the brand tag.
//
// Lengths are measured in runes so multi-byte characters count once.
//
// Inputs:
//   - caption: The raw caption text.
//   - brandTag: The brand hashtag to preserve as the final token.
//   - maxLength: The maximum caption length in runes.
//
// Outputs:
//   - string: The repaired caption, always ending with the brand tag.
//   - bool: True when any content was removed to fit the budget.
func RepairCaption(caption string, brandTag string, maxLength int) (string, bool) {
	tokens := strings.Fields(caption)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if strings.EqualFold(token, brandTag) {
			continue
		}
		kept = append(kept, token)
	}

	truncated := false
	for captionLength(kept, brandTag) > maxLength {
		last := len(kept) - 1
		if last < 0 || !strings.HasPrefix(kept[last], "#") {
			break
		}
		kept = kept[:last]
		truncated = true
	}

	if captionLength(kept, brandTag) > maxLength {
		budget := maxLength - utf8.RuneCountInString(brandTag) - 1
		if budget < 0 {
			budget = 0
		}
		message := strings.Join(kept, " ")
		if runes := []rune(message); len(runes) > budget {
			message = strings.TrimSpace(string(runes[:budget]))
		}
		return strings.TrimSpace(message + " " + brandTag), true
	}

	if len(kept) == 0 {
		return brandTag, truncated
	}
	return strings.Join(kept, " ") + " " + brandTag, truncated
}

// captionLength measures the rune length of the tokens joined by single
// spaces with the brand tag appended last.
func captionLength(tokens []string, brandTag string) int {
	length := utf8.RuneCountInString(brandTag)
	for _, token := range tokens {
		length += utf8.RuneCountInString(token) + 1
	}
	return length
}
