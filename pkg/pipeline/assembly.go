package pipeline

import "time"

// RunFinalAssembly packages everything into the deliverable playbook.
// It always sets FinalOutput: even a run where every stage fell back to
// placeholders produces a complete document, flagged so the caller can
// tell.
func (e *Executor) RunFinalAssembly(st *State) {
	output := Result{
		"business_description": st.BusinessDescription,
		"analysis": map[string]any{
			"discovery":    map[string]any(st.Discovery),
			"competitors":  map[string]any(st.Competitors),
			"positioning":  map[string]any(st.Positioning),
			"trust":        map[string]any(st.Trust),
			"emotional":    map[string]any(st.Emotional),
			"social_proof": map[string]any(st.SocialProof),
		},
		"messaging_framework": map[string]any(st.Messaging),
		"content_assets":      map[string]any(st.Content),
		"quality_report":      map[string]any(st.QualityReport),
		"generated_at":        time.Now().UTC().Format(time.RFC3339),
		"reflection_metadata": map[string]any{
			"total_reflection_cycles":    st.ReflectionCycle,
			"final_quality_score":        st.CurrentQuality,
			"quality_threshold":          st.QualityThreshold,
			"reflection_history":         st.ReflectionHistory,
			"meta_review":                map[string]any(st.MetaReview),
			"refinement_areas_addressed": st.RefinementAreas,
			"critique_points":            st.CritiquePoints,
		},
	}

	if st.CompanyName != "" {
		output["company_name"] = st.CompanyName
	}
	if st.Industry != "" {
		output["industry"] = st.Industry
	}

	if st.UsedFallback() {
		output["degraded"] = true
		e.logger.Warn("⚠️ Final playbook includes placeholder sections")
	}

	st.FinalOutput = output
	e.logger.Info("📦 Final assembly complete: quality %.2f after %d reflection cycles",
		st.CurrentQuality, st.ReflectionCycle)
}
