package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/progress"
)

// scriptedClient routes responses by the prompt's template heading, so a
// full pipeline run can be driven deterministically.
func scriptedClient(fn func(prompt string) (string, error)) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			prompt := req.Messages[len(req.Messages)-1].Content
			content, err := fn(prompt)
			if err != nil {
				return llm.CompletionResponse{}, err
			}
			return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
		},
		func() string { return "scripted-model" },
	)
}

// routedClient answers quality/critique/refinement/meta-review prompts
// with the given payloads and everything else with generic stage JSON.
func routedClient(t *testing.T, quality, metaReview string) llm.LLMClient {
	t.Helper()
	return scriptedClient(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "# Meta Review"):
			return metaReview, nil
		case strings.Contains(prompt, "# Refinement Plan"):
			return `{"rewrite_instructions": ["sharpen the value prop", "cut jargon"], "keep_as_is": ["taglines"], "tone_adjustments": "more direct"}`, nil
		case strings.Contains(prompt, "# Playbook Critique"):
			return `{"weaknesses": ["too vague"], "root_causes": ["no proof points"], "concrete_fixes": ["add numbers"], "priority_order": ["add numbers"]}`, nil
		case strings.Contains(prompt, "# Playbook Quality Review"):
			return quality, nil
		default:
			return `{"target_audience": "construction PMs", "pain_points": ["missed deadlines", "budget overruns"], "unique_strengths": ["field-first design"]}`, nil
		}
	})
}

const metaContinue = `{"assessment": "still improving", "diminishing_returns": false, "recommendations": {"continue_reflection": true, "focus_next_cycle": "urgency"}}`
const metaStop = `{"assessment": "converged", "diminishing_returns": true, "recommendations": {"continue_reflection": false, "focus_next_cycle": ""}}`

func runPipeline(t *testing.T, client llm.LLMClient, req Request) *State {
	t.Helper()
	runner := NewRunner(client, newTestRenderer(t), nil, nil, 0, 0)
	st, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, st.FinalOutput)
	return st
}

func TestRunHighQualitySkipsReflection(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 10.0, false), metaContinue)
	st := runPipeline(t, client, Request{
		SessionID:           "s-high",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})

	assert.Equal(t, 0, st.ReflectionCycle)
	assert.Empty(t, st.ReflectionHistory)
	assert.InDelta(t, 10.0, st.CurrentQuality, 0.001)

	meta := st.FinalOutput["reflection_metadata"].(map[string]any)
	assert.Equal(t, 0, meta["total_reflection_cycles"])
}

func TestRunLowQualityHitsCycleCap(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 2.0, true), metaContinue)
	st := runPipeline(t, client, Request{
		SessionID:           "s-low",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})

	assert.Equal(t, DefaultMaxReflectionCycles, st.ReflectionCycle)
	assert.Len(t, st.ReflectionHistory, DefaultMaxReflectionCycles)
	assert.NotEmpty(t, st.CritiquePoints)

	meta := st.FinalOutput["reflection_metadata"].(map[string]any)
	assert.Equal(t, DefaultMaxReflectionCycles, meta["total_reflection_cycles"])
	assert.InDelta(t, 2.0, meta["final_quality_score"].(float64), 0.001)
}

func TestRunZeroMaxCyclesDisablesReflection(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 1.0, true), metaContinue)
	st := runPipeline(t, client, Request{
		SessionID:           "s-zero",
		BusinessDescription: "construction software",
		MaxReflectionCycles: 0,
	})

	assert.Equal(t, 0, st.ReflectionCycle)
	assert.Empty(t, st.ReflectionHistory)
}

func TestRunMetaReviewStopsLoop(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 2.0, true), metaStop)
	st := runPipeline(t, client, Request{
		SessionID:           "s-meta",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})

	// One cycle ran; the meta reviewer then withdrew the refinement request
	assert.Equal(t, 1, st.ReflectionCycle)
	assert.False(t, st.NeedsRefinement)
}

// Each sub-stage of a reflection cycle is a distinct tracker event, so
// polling clients see critique, refinement, regeneration, re-scoring,
// and the meta review as they happen.
func TestRunReportsReflectionSubStages(t *testing.T) {
	tracker := &recordingTracker{}
	client := routedClient(t, qualityJSON(t, 2.0, true), metaStop)
	runner := NewRunner(client, newTestRenderer(t), nil, tracker, 0, 0)

	st, err := runner.Run(context.Background(), Request{
		SessionID:           "s-reflection-progress",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, st.ReflectionCycle)

	// The nine pipeline stages, then the six sub-stages of the single
	// cycle, then final assembly.
	want := []string{
		StageDiscovery, StageCompetitors, StagePositioning,
		StageTrust, StageEmotional, StageSocialProof,
		StageMessaging, StageContent, StageQualityReview,
		StageCritique, StageRefinement, StageMessaging,
		StageContent, StageQualityReview, StageMetaReview,
		StageFinalAssembly,
	}
	assert.Equal(t, want, tracker.started)
	assert.Equal(t, progress.StatusCompleted, tracker.finished[StageRefinement])
	assert.Equal(t, progress.StatusCompleted, tracker.finished[StageMetaReview])
}

func TestRunAllFailuresStillProducesPlaybook(t *testing.T) {
	client := scriptedClient(func(string) (string, error) {
		return "", assert.AnError
	})
	st := runPipeline(t, client, Request{
		SessionID:           "s-fail",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})

	// Quality review fallback scores above threshold, so no reflection
	assert.Equal(t, 0, st.ReflectionCycle)
	assert.InDelta(t, FallbackQualityScore, st.CurrentQuality, 0.001)
	assert.Equal(t, true, st.FinalOutput["degraded"])

	// Every section is still present
	analysis := st.FinalOutput["analysis"].(map[string]any)
	for _, key := range []string{"discovery", "competitors", "positioning", "trust", "emotional", "social_proof"} {
		assert.NotEmpty(t, analysis[key], "missing analysis section %s", key)
	}
	messaging := st.FinalOutput["messaging_framework"].(map[string]any)
	assert.Equal(t, fallbackValueProp, messaging["value_proposition"])
	content := st.FinalOutput["content_assets"].(map[string]any)
	assert.Len(t, content["website_headlines"], 3)
	assert.Len(t, content["email_templates"], 2)
}

func TestRunCustomThreshold(t *testing.T) {
	// Score 7 with a threshold of 6.5 needs no reflection
	client := routedClient(t, qualityJSON(t, 7.0, true), metaContinue)
	st := runPipeline(t, client, Request{
		SessionID:           "s-thresh",
		BusinessDescription: "construction software",
		QualityThreshold:    6.5,
		MaxReflectionCycles: -1,
	})

	assert.Equal(t, 0, st.ReflectionCycle)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(routedClient(t, qualityJSON(t, 10.0, false), metaContinue), newTestRenderer(t), nil, nil, 0, 0)
	_, err := runner.Run(ctx, Request{SessionID: "s-cancel", BusinessDescription: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFinalOutputSerializes(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 9.5, false), metaContinue)
	st := runPipeline(t, client, Request{
		SessionID:           "s-json",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})

	_, err := json.Marshal(st.FinalOutput)
	require.NoError(t, err)
}

// recordingTracker captures progress events for assertions.
type recordingTracker struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
}

func (r *recordingTracker) StageStarted(_ context.Context, _, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, stage)
}

func (r *recordingTracker) StageFinished(_ context.Context, _, stage, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]string{}
	}
	r.finished[stage] = status
}

func TestRunReportsProgress(t *testing.T) {
	tracker := &recordingTracker{}
	client := routedClient(t, qualityJSON(t, 10.0, false), metaContinue)
	runner := NewRunner(client, newTestRenderer(t), nil, tracker, 0, 0)

	_, err := runner.Run(context.Background(), Request{
		SessionID:           "s-progress",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})
	require.NoError(t, err)

	want := []string{
		StageDiscovery, StageCompetitors, StagePositioning,
		StageTrust, StageEmotional, StageSocialProof,
		StageMessaging, StageContent, StageQualityReview,
		StageFinalAssembly,
	}
	assert.Equal(t, want, tracker.started)
	assert.Equal(t, progress.StatusCompleted, tracker.finished[StageDiscovery])
}

func TestRunRecordsStageMessages(t *testing.T) {
	client := routedClient(t, qualityJSON(t, 10.0, false), metaContinue)
	runner := NewRunner(client, newTestRenderer(t), nil, nil, 0, 0)

	st, err := runner.Run(context.Background(), Request{
		SessionID:           "s-messages",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})
	require.NoError(t, err)

	// Nine stages plus final assembly, no reflection at quality 10.
	require.Len(t, st.Messages, 10)
	assert.Equal(t, "discovery completed", st.Messages[0])
	assert.Equal(t, "final_assembly completed", st.Messages[9])
}

func TestRunMarksFallbackStages(t *testing.T) {
	tracker := &recordingTracker{}
	client := scriptedClient(func(string) (string, error) {
		return "", assert.AnError
	})
	runner := NewRunner(client, newTestRenderer(t), nil, tracker, 0, 0)

	_, err := runner.Run(context.Background(), Request{
		SessionID:           "s-fallback",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, progress.StatusFallback, tracker.finished[StageDiscovery])
}

// Sub-prompt failures inside messaging/content must surface as degraded
// output even when every other stage succeeds.
func TestRunSubCallFallbacksMarkDegraded(t *testing.T) {
	subPrompts := []string{
		"# Value Proposition", "# Elevator Pitch", "# Tagline Options",
		"# Key Differentiators", "# Website Headlines", "# LinkedIn Posts",
		"# Outreach Emails", "# Sales One-Liners",
	}
	tracker := &recordingTracker{}
	base := routedClient(t, qualityJSON(t, 10.0, false), metaContinue)
	client := scriptedClient(func(prompt string) (string, error) {
		for _, h := range subPrompts {
			if strings.Contains(prompt, h) {
				return "", assert.AnError
			}
		}
		resp, err := base.Complete(context.Background(), llm.CompletionRequest{
			Messages: []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		})
		return resp.Content, err
	})
	runner := NewRunner(client, newTestRenderer(t), nil, tracker, 0, 0)

	st, err := runner.Run(context.Background(), Request{
		SessionID:           "s-degraded-subcalls",
		BusinessDescription: "construction software",
		MaxReflectionCycles: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, fallbackValueProp, st.Messaging["value_proposition"])
	assert.Contains(t, st.Messaging["fallback_reason"], "value_proposition")
	assert.Contains(t, st.Content["fallback_reason"], "website_headlines")
	assert.True(t, st.UsedFallback())
	assert.Equal(t, true, st.FinalOutput["degraded"])
	assert.Equal(t, progress.StatusFallback, tracker.finished[StageMessaging])
	assert.Equal(t, progress.StatusFallback, tracker.finished[StageContent])
	// Analysis stages were untouched by the sub-prompt failures
	assert.Equal(t, progress.StatusCompleted, tracker.finished[StageDiscovery])
}
