package pipeline

import (
	"context"

	"messagecraft/pkg/templates"
)

// QualityDimensions are the ten axes the review stage scores, each on a
// 1-10 scale.
var QualityDimensions = []string{
	"messaging_quality",
	"differentiation",
	"emotional_resonance",
	"rational_strength",
	"clarity",
	"credibility",
	"urgency",
	"proof",
	"relevance",
	"conversion",
}

// FallbackQualityScore is assumed when the review stage itself fails.
// High enough to avoid looping on a broken reviewer, paired with
// needs_refinement so a later cycle can still improve the output.
const FallbackQualityScore = 8.5

// RunQualityReview scores the generated playbook across all quality
// dimensions and updates the state's quality fields. The effective score
// is the higher of the model's reported overall score and the mean of
// the valid dimension scores, so a model that under-reports its own
// aggregate cannot trigger spurious reflection.
func (e *Executor) RunQualityReview(ctx context.Context, st *State) {
	report, reason := e.RunAnalytic(ctx, StageQualityReview, templates.QualityReviewTemplate, templateData(st))
	if report == nil {
		e.logger.Warn("⚠️ Quality review failed (%s), assuming fallback score %.1f", reason, FallbackQualityScore)
		report = fallbackQualityReport()
	}

	st.QualityReport = report
	st.CurrentQuality = effectiveQuality(report)
	st.NeedsRefinement = refinementRequested(report)
	st.RefinementAreas = refinementAreas(report)

	e.logger.Info("📊 Quality review: score %.2f (threshold %.1f), needs_refinement=%v",
		st.CurrentQuality, st.QualityThreshold, st.NeedsRefinement)
}

// effectiveQuality computes max(reported overall, mean of valid
// dimension scores). Dimension scores outside [1,10] are ignored.
func effectiveQuality(report Result) float64 {
	reported := scoreValue(report["overall_score"])

	sum, valid := 0.0, 0
	scores, _ := report["scores"].(map[string]any)
	for _, dim := range QualityDimensions {
		s := scoreValue(scores[dim])
		if s >= 1 && s <= 10 {
			sum += s
			valid++
		}
	}

	if valid == 0 {
		if reported > 0 {
			return reported
		}
		return FallbackQualityScore
	}

	mean := sum / float64(valid)
	if reported > mean {
		return reported
	}
	return mean
}

func refinementRequested(report Result) bool {
	needs, ok := report["needs_refinement"].(bool)
	if !ok {
		// Missing field: assume refinement is wanted so a low score
		// is not silently accepted.
		return true
	}
	return needs
}

// refinementAreas collects the reviewer's critical issues and
// improvement suggestions for the critique stage.
func refinementAreas(report Result) []string {
	areas := toStrings(report["critical_issues"])
	areas = append(areas, toStrings(report["improvement_suggestions"])...)
	return areas
}

func fallbackQualityReport() Result {
	scores := make(map[string]any, len(QualityDimensions))
	for _, dim := range QualityDimensions {
		scores[dim] = FallbackQualityScore
	}
	return Result{
		"scores":           scores,
		"overall_score":    FallbackQualityScore,
		"needs_refinement": true,
		"critical_issues":  []any{},
		"fallback_reason":  "quality review unavailable",
	}
}

func scoreValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
