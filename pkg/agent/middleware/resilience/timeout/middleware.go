// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"messagecraft/pkg/agent/llm"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// Each request gets a timeout context to prevent hanging requests.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
