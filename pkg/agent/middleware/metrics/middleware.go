// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"time"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/llmerrors"
	"messagecraft/pkg/logx"
	"messagecraft/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// CostModel computes USD cost from token counts.
type CostModel struct {
	CpmTokensIn  float64 // cost per million input tokens, USD
	CpmTokensOut float64 // cost per million output tokens, USD
}

// Cost returns the USD cost of a request.
func (c CostModel) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1e6*c.CpmTokensIn + float64(completionTokens)/1e6*c.CpmTokensOut
}

// extractUsage returns token counts, preferring provider-reported usage and
// falling back to tiktoken estimation when the provider omits it.
func extractUsage(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.TokensIn > 0 || resp.TokensOut > 0 {
		return resp.TokensIn, resp.TokensOut
	}

	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return utils.CountTokensSimple(promptText), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, cost, success/failure rates, and error types.
// Session and stage labels are read from the request context via WithLabels.
func Middleware(recorder Recorder, costs CostModel, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				labels := LabelsFrom(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				if err == nil {
					promptTokens, completionTokens = extractUsage(req, resp)
					cost = costs.Cost(promptTokens, completionTokens)
				}

				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				recorder.ObserveRequest(
					model,
					labels.SessionID,
					labels.Stage,
					promptTokens,
					completionTokens,
					cost,
					err == nil,
					errorType,
					duration,
				)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					totalTokens := promptTokens + completionTokens
					logger.Info("🎯 LLM Request: model=%s session=%s stage=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, labels.SessionID, labels.Stage, promptTokens, completionTokens, totalTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
