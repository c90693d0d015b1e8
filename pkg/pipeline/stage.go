package pipeline

import (
	"context"
	"strings"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/middleware/metrics"
	"messagecraft/pkg/jsonrepair"
	"messagecraft/pkg/logx"
	"messagecraft/pkg/templates"
	"messagecraft/pkg/utils"
)

// Executor runs individual pipeline stages against the LLM. Each stage
// gets at most two model attempts: the primary prompt, then a simplified
// adaptive prompt. If both fail the stage falls back to placeholder
// content so the run always completes.
type Executor struct {
	client       llm.LLMClient
	renderer     *templates.Renderer
	counter      *utils.TokenCounter
	logger       *logx.Logger
	maxTokens    int
	promptBudget int
}

// NewExecutor creates a stage executor. A nil counter disables prompt
// truncation; maxTokens and promptBudget fall back to sane defaults
// when zero.
func NewExecutor(client llm.LLMClient, renderer *templates.Renderer, counter *utils.TokenCounter, maxTokens, promptBudget int) *Executor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if promptBudget <= 0 {
		promptBudget = 12000
	}
	return &Executor{
		client:       client,
		renderer:     renderer,
		counter:      counter,
		logger:       logx.NewLogger("pipeline"),
		maxTokens:    maxTokens,
		promptBudget: promptBudget,
	}
}

// RunJSON executes a JSON-producing stage. The primary prompt is tried
// first; when its output cannot be parsed into a valid, sufficient
// result, the adaptive prompt gets one more attempt and its result is
// marked with adaptive_analysis_used. If that also fails, the
// placeholder is returned with a fallback_reason.
func (e *Executor) RunJSON(ctx context.Context, stage string, primary, adaptive templates.StageTemplate, data *templates.TemplateData, placeholder Result) Result {
	ctx = metrics.WithLabels(ctx, sessionFrom(data), stage)

	result, reason := e.attempt(ctx, stage, primary, data, llm.TemperatureDefault)
	if result != nil {
		return result
	}
	e.logger.Info("🔄 Stage %s: primary prompt failed (%s), trying adaptive prompt", stage, reason)

	result, reason = e.attempt(ctx, stage, adaptive, data, llm.TemperatureDefault)
	if result != nil {
		result["adaptive_analysis_used"] = true
		return result
	}
	e.logger.Warn("⚠️ Stage %s: adaptive prompt failed (%s), using placeholder", stage, reason)

	fallback := make(Result, len(placeholder)+1)
	for k, v := range placeholder {
		fallback[k] = v
	}
	fallback["fallback_reason"] = reason
	return fallback
}

// RunAnalytic is RunJSON at the analytic temperature, for scoring and
// critique stages where numeric stability matters more than variety.
func (e *Executor) RunAnalytic(ctx context.Context, stage string, tpl templates.StageTemplate, data *templates.TemplateData) (Result, string) {
	ctx = metrics.WithLabels(ctx, sessionFrom(data), stage)
	return e.attempt(ctx, stage, tpl, data, llm.TemperatureAnalytic)
}

// RunText executes a plain-text sub-prompt (e.g. a tagline list). On any
// failure the static fallback is returned, with fellBack set so the
// caller can mark the stage result as degraded.
func (e *Executor) RunText(ctx context.Context, stage string, tpl templates.StageTemplate, data *templates.TemplateData, fallback string) (text string, fellBack bool) {
	ctx = metrics.WithLabels(ctx, sessionFrom(data), stage)

	prompt, err := e.renderer.Render(tpl, data)
	if err != nil {
		e.logger.Warn("⚠️ Stage %s: template render failed: %v", stage, err)
		return fallback, true
	}
	prompt = e.fitBudget(prompt)

	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   e.maxTokens,
		Temperature: llm.TemperatureDefault,
	})
	if err != nil {
		e.logger.Warn("⚠️ Stage %s: completion failed: %v", stage, err)
		return fallback, true
	}
	text = strings.TrimSpace(resp.Content)
	if text == "" {
		return fallback, true
	}
	return text, false
}

// attempt makes one LLM call and parses its output. Returns a nil result
// and a reason string when the attempt did not produce usable content.
func (e *Executor) attempt(ctx context.Context, stage string, tpl templates.StageTemplate, data *templates.TemplateData, temperature float32) (Result, string) {
	prompt, err := e.renderer.Render(tpl, data)
	if err != nil {
		return nil, "template render failed: " + err.Error()
	}
	prompt = e.fitBudget(prompt)

	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   e.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, "completion failed: " + err.Error()
	}

	parsed, err := jsonrepair.Parse(resp.Content)
	if err != nil {
		return nil, "response was not parseable JSON"
	}
	if !jsonrepair.Valid(parsed) {
		return nil, "response carried an error marker"
	}
	if !jsonrepair.Sufficient(parsed) {
		return nil, "response had too little content"
	}

	e.logger.Debug("✅ Stage %s: parsed %d top-level keys", stage, len(parsed))
	return Result(parsed), ""
}

// fitBudget truncates an oversized prompt so analysis context from prior
// stages cannot crowd out the instructions.
func (e *Executor) fitBudget(prompt string) string {
	if e.counter == nil {
		return prompt
	}
	if e.counter.ValidateTokenLimit(prompt, e.promptBudget) {
		return prompt
	}
	e.logger.Warn("⚠️ Prompt over budget (%d tokens allowed), truncating", e.promptBudget)
	return e.counter.TruncateToTokenLimit(prompt, e.promptBudget)
}

func sessionFrom(data *templates.TemplateData) string {
	if data == nil || data.Extra == nil {
		return ""
	}
	if id, ok := data.Extra["session_id"].(string); ok {
		return id
	}
	return ""
}
