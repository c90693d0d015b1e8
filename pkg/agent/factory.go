// Package agent provides LLM client factory with middleware chain construction.
package agent

import (
	"fmt"
	"time"

	"messagecraft/pkg/agent/internal/llmimpl/anthropic"
	"messagecraft/pkg/agent/internal/llmimpl/google"
	"messagecraft/pkg/agent/internal/llmimpl/ollama"
	"messagecraft/pkg/agent/internal/llmimpl/openai"
	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/middleware/metrics"
	"messagecraft/pkg/agent/middleware/resilience/retry"
	"messagecraft/pkg/agent/middleware/resilience/timeout"
	"messagecraft/pkg/config"
	"messagecraft/pkg/logx"
)

// ClientFactory creates LLM clients with properly configured middleware chains.
type ClientFactory struct {
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewClientFactory creates a new LLM client factory.
// Pass metrics.Nop() as recorder to disable metrics collection.
func NewClientFactory(recorder metrics.Recorder) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &ClientFactory{
		recorder: recorder,
		logger:   logx.NewLogger("llm"),
	}
}

// CreateClient creates an LLM client for the given model config with the full
// middleware chain: timeout -> metrics -> retry -> raw client.
func (f *ClientFactory) CreateClient(modelCfg *config.ModelCfg) (llm.LLMClient, error) {
	apiKey, err := modelCfg.APIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve API key: %w", err)
	}

	var rawClient llm.LLMClient
	switch modelCfg.Provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClient(apiKey, modelCfg.Name)
	case config.ProviderOpenAI:
		rawClient = openai.NewClient(apiKey, modelCfg.Name)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClient(apiKey, modelCfg.Name)
	case config.ProviderOllama:
		rawClient = ollama.NewClient(modelCfg.OllamaHost, modelCfg.Name)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", modelCfg.Provider)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   modelCfg.MaxRetries,
		InitialDelay:  time.Duration(modelCfg.RetryBackoffMS) * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	costs := metrics.CostModel{
		CpmTokensIn:  modelCfg.CpmTokensIn,
		CpmTokensOut: modelCfg.CpmTokensOut,
	}

	// Timeout is outermost so it bounds the full retry sequence;
	// metrics wraps retry so each logical request is observed once.
	client := llm.Chain(rawClient,
		timeout.Middleware(modelCfg.Timeout()),
		metrics.Middleware(f.recorder, costs, f.logger),
		retry.Middleware(retryPolicy),
	)

	f.logger.Info("📦 LLM client created: provider=%s model=%s timeout=%s retries=%d",
		modelCfg.Provider, modelCfg.Name, modelCfg.Timeout(), modelCfg.MaxRetries)

	return client, nil
}
