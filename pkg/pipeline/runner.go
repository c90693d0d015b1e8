package pipeline

import (
	"context"
	"fmt"
	"time"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/logx"
	"messagecraft/pkg/progress"
	"messagecraft/pkg/templates"
	"messagecraft/pkg/utils"
)

// Request describes one playbook generation run.
type Request struct {
	SessionID           string
	BusinessDescription string
	CompanyName         string
	Industry            string
	Questionnaire       string
	// QualityThreshold of zero keeps the default.
	QualityThreshold float64
	// MaxReflectionCycles of zero disables reflection entirely; negative
	// values keep the default.
	MaxReflectionCycles int
}

// Runner drives a full generation run through the stage graph.
type Runner struct {
	executor *Executor
	tracker  progress.Tracker
	logger   *logx.Logger
}

// NewRunner creates a runner. A nil tracker disables progress reporting.
func NewRunner(client llm.LLMClient, renderer *templates.Renderer, counter *utils.TokenCounter, tracker progress.Tracker, maxTokens, promptBudget int) *Runner {
	if tracker == nil {
		tracker = progress.Nop()
	}
	return &Runner{
		executor: NewExecutor(client, renderer, counter, maxTokens, promptBudget),
		tracker:  tracker,
		logger:   logx.NewLogger("pipeline"),
	}
}

// Run executes the full pipeline: six analysis stages, messaging and
// content generation, quality review, the bounded reflection loop, and
// final assembly. The returned state always has a non-nil FinalOutput.
// The only error returned is context cancellation; every other failure
// degrades to placeholder content instead.
func (r *Runner) Run(ctx context.Context, req Request) (*State, error) {
	st := NewState(req.SessionID, req.BusinessDescription, req.Questionnaire)
	st.CompanyName = req.CompanyName
	st.Industry = req.Industry
	if req.QualityThreshold > 0 {
		st.QualityThreshold = req.QualityThreshold
	}
	if req.MaxReflectionCycles >= 0 {
		st.MaxReflectionCycles = req.MaxReflectionCycles
	}

	r.logger.Info("🚀 Starting playbook generation (session %s, threshold %.1f, max cycles %d)",
		st.SessionID, st.QualityThreshold, st.MaxReflectionCycles)

	type stage struct {
		name string
		run  func(context.Context, *State)
	}
	stages := []stage{
		{StageDiscovery, r.executor.RunDiscovery},
		{StageCompetitors, r.executor.RunCompetitors},
		{StagePositioning, r.executor.RunPositioning},
		{StageTrust, r.executor.RunTrust},
		{StageEmotional, r.executor.RunEmotional},
		{StageSocialProof, r.executor.RunSocialProof},
		{StageMessaging, r.executor.RunMessaging},
		{StageContent, r.executor.RunContent},
		{StageQualityReview, r.executor.RunQualityReview},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		status := r.runStage(ctx, st, s.name, s.run)
		st.AddMessage(fmt.Sprintf("%s %s", s.name, status))
	}

	for ShouldReflect(st) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		r.runReflectionCycle(ctx, st)
		st.AddMessage(fmt.Sprintf("reflection cycle %d quality %.2f", st.ReflectionCycle, st.CurrentQuality))
	}

	r.tracker.StageStarted(ctx, st.SessionID, StageFinalAssembly)
	r.executor.RunFinalAssembly(st)
	r.tracker.StageFinished(ctx, st.SessionID, StageFinalAssembly, progress.StatusCompleted)
	st.AddMessage("final_assembly completed")

	return st, nil
}

// runStage executes one stage with progress reporting around it.
func (r *Runner) runStage(ctx context.Context, st *State, name string, run func(context.Context, *State)) string {
	r.tracker.StageStarted(ctx, st.SessionID, name)
	run(ctx, st)
	status := stageStatus(st, name)
	r.tracker.StageFinished(ctx, st.SessionID, name, status)
	return status
}

// runReflectionCycle executes one critique/refine pass, regenerates the
// messaging and content with the refinement feedback applied, and
// re-scores, reporting each sub-stage to the tracker so polling clients
// see reflection progress. The cycle counter advances exactly once per
// call, so the loop terminates after at most MaxReflectionCycles passes.
func (r *Runner) runReflectionCycle(ctx context.Context, st *State) {
	st.ReflectionCycle++
	r.logger.Info("🔁 Reflection cycle %d/%d (quality %.2f below threshold %.1f)",
		st.ReflectionCycle, st.MaxReflectionCycles, st.CurrentQuality, st.QualityThreshold)

	r.runStage(ctx, st, StageCritique, r.executor.RunCritique)
	r.runStage(ctx, st, StageRefinement, r.executor.RunRefinement)

	r.runStage(ctx, st, StageMessaging, r.executor.RunMessaging)
	r.runStage(ctx, st, StageContent, r.executor.RunContent)
	r.runStage(ctx, st, StageQualityReview, r.executor.RunQualityReview)

	// Runs after re-scoring so its stop decision survives the fresh
	// needs_refinement flag from the review.
	r.runStage(ctx, st, StageMetaReview, r.executor.RunMetaReview)

	st.ReflectionHistory = append(st.ReflectionHistory, HistoryEntry{
		Cycle:           st.ReflectionCycle,
		Timestamp:       time.Now().UTC(),
		QualityScore:    st.CurrentQuality,
		RefinementAreas: append([]string(nil), st.RefinementAreas...),
	})
}

// stageStatus maps a just-completed stage to its progress status,
// surfacing placeholder fallbacks to polling clients.
func stageStatus(st *State, name string) string {
	var result Result
	switch name {
	case StageDiscovery:
		result = st.Discovery
	case StageCompetitors:
		result = st.Competitors
	case StagePositioning:
		result = st.Positioning
	case StageTrust:
		result = st.Trust
	case StageEmotional:
		result = st.Emotional
	case StageSocialProof:
		result = st.SocialProof
	case StageMessaging:
		result = st.Messaging
	case StageContent:
		result = st.Content
	case StageQualityReview:
		result = st.QualityReport
	}
	if result != nil {
		if _, ok := result["fallback_reason"]; ok {
			return progress.StatusFallback
		}
	}
	return progress.StatusCompleted
}
