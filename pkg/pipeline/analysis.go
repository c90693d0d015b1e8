package pipeline

import (
	"context"
	"encoding/json"

	"messagecraft/pkg/templates"
)

// templateData builds render data from the current state. Prior stage
// results are serialized so prompts can quote them verbatim.
func templateData(st *State) *templates.TemplateData {
	return &templates.TemplateData{
		BusinessDescription: st.BusinessDescription,
		CompanyName:         st.CompanyName,
		Industry:            st.Industry,
		Questionnaire:       st.Questionnaire,
		Discovery:           asJSON(st.Discovery),
		Competitors:         asJSON(st.Competitors),
		Positioning:         asJSON(st.Positioning),
		Trust:               asJSON(st.Trust),
		Emotional:           asJSON(st.Emotional),
		SocialProof:         asJSON(st.SocialProof),
		Messaging:           asJSON(st.Messaging),
		Content:             asJSON(st.Content),
		QualityReport:       asJSON(st.QualityReport),
		QualityThreshold:    st.QualityThreshold,
		Cycle:               st.ReflectionCycle,
		CritiquePoints:      st.CritiquePoints,
		RefinementAreas:     st.RefinementAreas,
		ReflectionFeedback:  asJSON(st.ReflectionFeedback),
		Extra:               map[string]any{"session_id": st.SessionID},
	}
}

func asJSON(r Result) string {
	if r == nil {
		return ""
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// RunDiscovery extracts the target audience, pain points, and unique
// strengths from the business description. When questionnaire answers
// are present it switches to the enriched profile prompt, whose schema
// adds emotional drivers, the transformation story, tone, goals, and
// communication platforms.
func (e *Executor) RunDiscovery(ctx context.Context, st *State) {
	primary := templates.DiscoveryTemplate
	placeholder := Result{
		"target_audience":  "Business decision makers evaluating solutions in this space",
		"pain_points":      []any{"Unclear how to articulate their value", "Inconsistent messaging across channels", "Difficulty standing out from competitors"},
		"unique_strengths": []any{"Deep domain expertise", "Customer-focused approach"},
		"business_model":   "B2B services",
	}
	if st.Questionnaire != "" {
		primary = templates.DiscoveryQuestionnaireTemplate
		placeholder["customer_emotions"] = []any{"Confidence in the decision", "Relief from ongoing frustration"}
		placeholder["transformation"] = "From unclear positioning to messaging the whole team can repeat"
		placeholder["communication_platforms"] = []any{"Website", "LinkedIn", "Email"}
	}
	st.Discovery = e.RunJSON(ctx, StageDiscovery,
		primary, templates.DiscoveryAdaptiveTemplate,
		templateData(st), placeholder)
}

// RunCompetitors maps the competitive landscape and common claims.
func (e *Executor) RunCompetitors(ctx context.Context, st *State) {
	st.Competitors = e.RunJSON(ctx, StageCompetitors,
		templates.CompetitorsTemplate, templates.CompetitorsAdaptiveTemplate,
		templateData(st), Result{
			"competitor_categories": []any{"Established incumbents", "Low-cost alternatives", "In-house solutions"},
			"common_claims":         []any{"Industry-leading results", "Trusted by customers", "Easy to use"},
			"market_gaps":           []any{"Few competitors speak to measurable outcomes"},
		})
}

// RunPositioning derives the positioning strategy from discovery and
// competitor results.
func (e *Executor) RunPositioning(ctx context.Context, st *State) {
	st.Positioning = e.RunJSON(ctx, StagePositioning,
		templates.PositioningTemplate, templates.PositioningAdaptiveTemplate,
		templateData(st), Result{
			"positioning_statement": "The dependable choice for organizations that need results they can measure",
			"differentiation_angle": "Outcome-focused delivery over feature checklists",
			"proof_points":          []any{"Track record with similar customers", "Transparent process", "Measurable results"},
		})
}

// RunTrust identifies trust-building levers and objection handling.
func (e *Executor) RunTrust(ctx context.Context, st *State) {
	st.Trust = e.RunJSON(ctx, StageTrust,
		templates.TrustTemplate, templates.TrustAdaptiveTemplate,
		templateData(st), Result{
			"trust_builders":    []any{"Case studies with concrete numbers", "Transparent pricing", "Named team members"},
			"common_objections": []any{"Is this worth the cost?", "Will this work for our situation?"},
			"risk_reversals":    []any{"Pilot engagement before full commitment"},
		})
}

// RunEmotional surfaces the emotional drivers behind the purchase.
func (e *Executor) RunEmotional(ctx context.Context, st *State) {
	st.Emotional = e.RunJSON(ctx, StageEmotional,
		templates.EmotionalTemplate, templates.EmotionalAdaptiveTemplate,
		templateData(st), Result{
			"primary_emotions":   []any{"Confidence in the decision", "Relief from ongoing frustration"},
			"aspirations":        []any{"Being seen as the person who fixed the problem"},
			"fears":              []any{"Choosing a vendor that underdelivers"},
			"emotional_triggers": []any{"Peace of mind", "Professional recognition"},
		})
}

// RunSocialProof plans the social proof strategy.
func (e *Executor) RunSocialProof(ctx context.Context, st *State) {
	st.SocialProof = e.RunJSON(ctx, StageSocialProof,
		templates.SocialProofTemplate, templates.SocialProofAdaptiveTemplate,
		templateData(st), Result{
			"proof_types":          []any{"Customer testimonials", "Usage statistics", "Industry recognition"},
			"testimonial_angles":   []any{"Before/after transformation", "Specific measurable wins"},
			"credibility_markers":  []any{"Years in business", "Customers served"},
			"placement_priorities": []any{"Homepage above the fold", "Pricing page"},
		})
}
