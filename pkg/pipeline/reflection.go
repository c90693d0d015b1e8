package pipeline

import (
	"context"

	"messagecraft/pkg/templates"
)

// ShouldReflect decides whether another reflection cycle runs. All three
// gates must hold: quality below threshold, cycle budget remaining, and
// refinement still requested (the meta reviewer can withdraw the
// request).
func ShouldReflect(st *State) bool {
	return st.CurrentQuality < st.QualityThreshold &&
		st.ReflectionCycle < st.MaxReflectionCycles &&
		st.NeedsRefinement
}

// RunCritique asks for a focused critique of the current playbook and
// accumulates its points across cycles so later critiques do not repeat
// earlier ones.
func (e *Executor) RunCritique(ctx context.Context, st *State) {
	critique, reason := e.RunAnalytic(ctx, StageCritique, templates.CritiqueTemplate, templateData(st))
	if critique == nil {
		e.logger.Warn("⚠️ Critique failed (%s), reusing quality report areas", reason)
		st.CritiquePoints = append(st.CritiquePoints, st.RefinementAreas...)
		return
	}
	st.CritiquePoints = append(st.CritiquePoints, toStrings(critique["weaknesses"])...)
	st.CritiquePoints = append(st.CritiquePoints, toStrings(critique["concrete_fixes"])...)
}

// RunRefinement turns the critique into rewrite instructions that feed
// the regeneration pass.
func (e *Executor) RunRefinement(ctx context.Context, st *State) {
	feedback, reason := e.RunAnalytic(ctx, StageRefinement, templates.RefinementTemplate, templateData(st))
	if feedback == nil {
		e.logger.Warn("⚠️ Refinement planning failed (%s), passing critique points directly", reason)
		feedback = Result{
			"rewrite_instructions": toAny(st.CritiquePoints),
			"keep_as_is":           []any{},
		}
	}
	st.ReflectionFeedback = feedback
}

// RunMetaReview lets an arbiter judge whether further reflection is
// worthwhile. A continue_reflection=false recommendation clears the
// refinement request, ending the loop regardless of score.
func (e *Executor) RunMetaReview(ctx context.Context, st *State) {
	review, reason := e.RunAnalytic(ctx, StageMetaReview, templates.MetaReviewTemplate, templateData(st))
	if review == nil {
		e.logger.Warn("⚠️ Meta review failed (%s), continuing on score alone", reason)
		return
	}
	st.MetaReview = review

	recs, ok := review["recommendations"].(map[string]any)
	if !ok {
		return
	}
	if cont, ok := recs["continue_reflection"].(bool); ok && !cont {
		e.logger.Info("🛑 Meta review recommends stopping reflection")
		st.NeedsRefinement = false
	}
}
