// Package metrics queries aggregated LLM usage from Prometheus. The
// middleware in pkg/agent/middleware/metrics writes the series; this
// package reads them back per generation session for usage reporting.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionUsage is the aggregated token and cost usage of one generation
// session.
type SessionUsage struct {
	SessionID        string  `json:"session_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService queries usage metrics from a Prometheus server.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetSessionUsage aggregates token counts and cost for one session across
// all stages and models.
func (q *QueryService) GetSessionUsage(ctx context.Context, sessionID string) (*SessionUsage, error) {
	usage := &SessionUsage{SessionID: sessionID}

	var err error
	if usage.PromptTokens, err = q.sumInt(ctx,
		fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="prompt"})`, sessionID)); err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if usage.CompletionTokens, err = q.sumInt(ctx,
		fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="completion"})`, sessionID)); err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	if usage.TotalCost, err = q.sumFloat(ctx,
		fmt.Sprintf(`sum(llm_costs_total{session_id=%q})`, sessionID)); err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}

	return usage, nil
}

// GetSessionUsageByStage breaks a session's usage down per pipeline
// stage, showing where the tokens went.
func (q *QueryService) GetSessionUsageByStage(ctx context.Context, sessionID string) (map[string]*SessionUsage, error) {
	stages, err := q.labelValues(ctx,
		fmt.Sprintf(`group by (stage) (llm_tokens_total{session_id=%q})`, sessionID), "stage")
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}

	result := make(map[string]*SessionUsage, len(stages))
	for _, stage := range stages {
		usage := &SessionUsage{SessionID: sessionID}

		if usage.PromptTokens, err = q.sumInt(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, stage=%q, type="prompt"})`, sessionID, stage)); err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for stage %s: %w", stage, err)
		}
		if usage.CompletionTokens, err = q.sumInt(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, stage=%q, type="completion"})`, sessionID, stage)); err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for stage %s: %w", stage, err)
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		if usage.TotalCost, err = q.sumFloat(ctx,
			fmt.Sprintf(`sum(llm_costs_total{session_id=%q, stage=%q})`, sessionID, stage)); err != nil {
			return nil, fmt.Errorf("failed to query cost for stage %s: %w", stage, err)
		}

		result[stage] = usage
	}

	return result, nil
}

// GetSessionUsageByModel breaks a session's usage down per model, useful
// when primary and fallback models both served the session.
func (q *QueryService) GetSessionUsageByModel(ctx context.Context, sessionID string) (map[string]*SessionUsage, error) {
	models, err := q.labelValues(ctx,
		fmt.Sprintf(`group by (model) (llm_tokens_total{session_id=%q})`, sessionID), "model")
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	result := make(map[string]*SessionUsage, len(models))
	for _, modelName := range models {
		usage := &SessionUsage{SessionID: sessionID}

		if usage.PromptTokens, err = q.sumInt(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="prompt"})`, sessionID, modelName)); err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		if usage.CompletionTokens, err = q.sumInt(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="completion"})`, sessionID, modelName)); err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		if usage.TotalCost, err = q.sumFloat(ctx,
			fmt.Sprintf(`sum(llm_costs_total{session_id=%q, model=%q})`, sessionID, modelName)); err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}

		result[modelName] = usage
	}

	return result, nil
}

// sumInt runs an instant query and returns its single sample as int64,
// or zero when the series does not exist yet.
func (q *QueryService) sumInt(ctx context.Context, query string) (int64, error) {
	val, err := q.sumFloat(ctx, query)
	return int64(val), err
}

func (q *QueryService) sumFloat(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// labelValues runs a group-by query and collects the values of one label.
func (q *QueryService) labelValues(ctx context.Context, query, label string) ([]string, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}

	var values []string
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if v, ok := sample.Metric[model.LabelName(label)]; ok {
				values = append(values, string(v))
			}
		}
	}
	return values, nil
}
