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

// Package model defines the data structures for the caption pipeline.
// This file, `examples.go`, provides factory functions for creating
// hardcoded, example instances of the data models.
//
// These example objects are crucial for "few-shot" prompting with the
// generative AI models. By providing a concrete example of the desired
// JSON output structure within the prompt itself, we guide the AI to
// return data that is consistent, correctly formatted, and easily
// parsable.
package model

// GetExampleClassificationEnvelope creates a sample classifier response.
// It is serialized into the classification prompt so the model sees the
// exact envelope shape, the canonical style vocabulary, and the expected
// confidence range before it answers.
//
// Outputs:
//   - *ClassificationEnvelope: a pointer to a hardcoded envelope with one
//     entry per canonical style.
func GetExampleClassificationEnvelope() *ClassificationEnvelope {
	out := &ClassificationEnvelope{Classifications: make([]*ClassificationResult, 0)}
	out.Classifications = append(out.Classifications,
		&ClassificationResult{
			SegmentId:  1,
			Style:      StyleViral,
			Confidence: 0.92,
			Rationale:  "Opens with a counterintuitive claim and resolves it inside fifteen seconds.",
		},
		&ClassificationResult{
			SegmentId:  2,
			Style:      StyleEducational,
			Confidence: 0.81,
			Rationale:  "Step-by-step explanation of a single technique with a concrete takeaway.",
		},
		&ClassificationResult{
			SegmentId:  3,
			Style:      StyleStorytelling,
			Confidence: 0.77,
			Rationale:  "Personal anecdote with a setup, a turn, and an emotional payoff.",
		})
	return out
}

// GetExampleDraftEnvelope creates a sample generator response for a style
// group. The example shows the model the clip envelope, the metadata
// schema, the score ranges, and a caption that stays under the length
// limit while ending in the brand tag.
//
// Inputs:
//   - brandTag: the required trailing brand tag, so the example always
//     matches the configured tag instead of a stale literal.
//
// Outputs:
//   - *DraftEnvelope: a pointer to a hardcoded envelope with one clip.
func GetExampleDraftEnvelope(brandTag string) *DraftEnvelope {
	out := &DraftEnvelope{Clips: make([]*GeneratedCopy, 0)}
	out.Clips = append(out.Clips, &GeneratedCopy{
		ClipId: 1,
		Copy:   "Nobody teaches you this about cold opens, and it changes everything about your first three seconds " + brandTag,
		Metadata: &CopyMetadata{
			Sentiment:                   SentimentCuriousEducational,
			SentimentScore:              0.84,
			EngagementScore:             8.5,
			SuggestedThumbnailTimestamp: 2.4,
			PrimaryTopics:               []string{"cold opens", "audience retention", "short-form video"},
			HookStrength:                HookVeryHigh,
			ViralPotential:              8.0,
		},
	})
	return out
}
