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

// Package cloud provides components for interacting with Google Cloud
// services. This file implements a wrapper around the standard Generative
// AI client. The wrapper uses the Decorator design pattern to add rate
// limiting and a retry mechanism to the Generative AI model without
// altering the client's code.
//
// Why this is important:
//   - Rate Limiting: Vertex AI enforces per-minute request quotas. Both
//     the classifier and the generator route every outbound call through
//     this wrapper, so minimum request spacing is enforced once, in one
//     place, instead of being duplicated at each call site.
//   - Retry Logic: Network requests can fail for transient reasons
//     (timeouts, rate-limit responses, server errors). The wrapper retries
//     a bounded number of times with a growing backoff before giving up,
//     at which point the caller treats the call as a sub-batch failure.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: Wraps a model name, its generation
//     config, and the client handle together with a rate limiter.
//
// Functions:
//   - NewQuotaAwareModel: A constructor to create a new instance of the
//     wrapped model.
//   - GenerateContent: The intercepting method that enforces spacing and
//     retries around the underlying GenerateContent call.
package cloud

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// retryCountKey is the private context key carrying the transport retry
// count across recursive GenerateContent attempts.
type retryCountKey struct{}

// maxTransportRetries bounds the in-wrapper retry loop. Exceeding it
// surfaces an error to the caller, which degrades the request to a
// sub-batch failure rather than failing the run.
const maxTransportRetries = 3

// ContentGenerator is the narrow surface commands depend on to invoke a
// generative model. *QuotaAwareGenerativeAIModel satisfies it in
// production; tests substitute scripted implementations.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel is a decorator that couples a generation
// config and model name with the shared client handle and a rate limiter.
// All of the pipeline's outbound model calls go through this type.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Generation settings applied to every call.
	ModelName               string                       // The Vertex AI model to invoke.
	ModelHandle             *genai.Models                // The underlying model accessor from the genai client.
	RateLimit               rate.Limiter                 // Enforces the minimum spacing between outbound requests.
	RetryBackoff            time.Duration                // Base backoff between transport retries.
}

// NewQuotaAwareModel is a constructor function that creates a new
// QuotaAwareGenerativeAIModel enforcing a minimum interval between
// outbound requests.
//
// Inputs:
//   - wrapped: The generation config to apply on every call.
//   - name: The model name to invoke.
//   - modelHandle: The model accessor from the genai client.
//   - minRequestInterval: The minimum spacing between two requests through
//     this wrapper.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: A pointer to the newly created wrapper.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, minRequestInterval time.Duration) *QuotaAwareGenerativeAIModel {
	if minRequestInterval <= 0 {
		minRequestInterval = 1500 * time.Millisecond
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		// A burst of one means every request waits out the full interval
		// behind the previous one.
		RateLimit:    *rate.NewLimiter(rate.Every(minRequestInterval), 1),
		RetryBackoff: 10 * time.Second,
	}
}

// GenerateContent wraps the underlying GenerateContent call with rate
// limiting and bounded retries.
//
// Logic Flow:
//  1. Take a token from the rate limiter, sleeping out the reservation
//     delay if the minimum spacing since the previous request has not
//     elapsed yet. Retried requests queue behind the same limiter as
//     first attempts.
//  2. Call the underlying model.
//  3. On failure, read the retry count from the context. If retries
//     remain, sleep a growing backoff and re-enter with the incremented
//     count; otherwise return a terminal error.
//
// Inputs:
//   - ctx: The context for the request; it carries the retry count and
//     the caller's deadline.
//   - content: The content slice forming the prompt.
//
// Outputs:
//   - *genai.GenerateContentResponse: The response from the AI model if successful.
//   - error: An error once retries are exhausted or the context is done.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (resp *genai.GenerateContentResponse, err error) {
	// Reserve always succeeds for a burst-capable limiter and tells us how
	// long this request must wait to honor the spacing.
	reservation := q.RateLimit.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		select {
		case <-ctx.Done():
			reservation.Cancel()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	resp, err = q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
	if err == nil {
		return resp, nil
	}

	// Transient failure path. The retry count rides on the context so the
	// recursive call sees how deep it already is.
	retryCount, ok := ctx.Value(retryCountKey{}).(int)
	if !ok {
		retryCount = 0
	}
	if retryCount >= maxTransportRetries {
		return nil, errors.New("failed generation on max retries")
	}
	errCtx := context.WithValue(ctx, retryCountKey{}, retryCount+1)

	// Back off before retrying to give the service time to recover. The
	// backoff grows linearly with the attempt number.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(q.RetryBackoff * time.Duration(retryCount+1)):
	}
	return q.GenerateContent(errCtx, content)
}
