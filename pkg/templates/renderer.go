// Package templates provides prompt template rendering for the playbook
// generation pipeline.
package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering.
type TemplateData struct {
	Extra map[string]any `json:"extra,omitempty"`
	// Pipeline inputs
	BusinessDescription string `json:"business_description"`
	CompanyName         string `json:"company_name,omitempty"`
	Industry            string `json:"industry,omitempty"`
	Questionnaire       string `json:"questionnaire,omitempty"`
	// Prior stage results, serialized as JSON for prompt context
	Discovery   string `json:"discovery,omitempty"`
	Competitors string `json:"competitors,omitempty"`
	Positioning string `json:"positioning,omitempty"`
	Trust       string `json:"trust,omitempty"`
	Emotional   string `json:"emotional,omitempty"`
	SocialProof string `json:"social_proof,omitempty"`
	Messaging   string `json:"messaging,omitempty"`
	Content     string `json:"content,omitempty"`
	// Reflection loop context
	QualityReport      string   `json:"quality_report,omitempty"`
	QualityThreshold   float64  `json:"quality_threshold,omitempty"`
	Cycle              int      `json:"cycle,omitempty"`
	CritiquePoints     []string `json:"critique_points,omitempty"`
	RefinementAreas    []string `json:"refinement_areas,omitempty"`
	ReflectionFeedback string   `json:"reflection_feedback,omitempty"`
}

// StageTemplate represents a pipeline prompt template.
type StageTemplate string

const (
	// DiscoveryTemplate is the primary prompt for business discovery analysis.
	DiscoveryTemplate StageTemplate = "discovery.tpl.md"
	// DiscoveryQuestionnaireTemplate is the discovery prompt used when
	// questionnaire answers are available; its schema adds emotional
	// drivers, transformation, tone, goals, and platforms.
	DiscoveryQuestionnaireTemplate StageTemplate = "discovery_questionnaire.tpl.md"
	// DiscoveryAdaptiveTemplate is the simplified fallback prompt for discovery.
	DiscoveryAdaptiveTemplate StageTemplate = "discovery_adaptive.tpl.md"
	// CompetitorsTemplate is the primary prompt for competitor analysis.
	CompetitorsTemplate StageTemplate = "competitors.tpl.md"
	// CompetitorsAdaptiveTemplate is the simplified fallback prompt for competitor analysis.
	CompetitorsAdaptiveTemplate StageTemplate = "competitors_adaptive.tpl.md"
	// PositioningTemplate is the primary prompt for positioning strategy.
	PositioningTemplate StageTemplate = "positioning.tpl.md"
	// PositioningAdaptiveTemplate is the simplified fallback prompt for positioning.
	PositioningAdaptiveTemplate StageTemplate = "positioning_adaptive.tpl.md"
	// TrustTemplate is the primary prompt for trust-building analysis.
	TrustTemplate StageTemplate = "trust.tpl.md"
	// TrustAdaptiveTemplate is the simplified fallback prompt for trust analysis.
	TrustAdaptiveTemplate StageTemplate = "trust_adaptive.tpl.md"
	// EmotionalTemplate is the primary prompt for emotional driver analysis.
	EmotionalTemplate StageTemplate = "emotional.tpl.md"
	// EmotionalAdaptiveTemplate is the simplified fallback prompt for emotional analysis.
	EmotionalAdaptiveTemplate StageTemplate = "emotional_adaptive.tpl.md"
	// SocialProofTemplate is the primary prompt for social proof strategy.
	SocialProofTemplate StageTemplate = "social_proof.tpl.md"
	// SocialProofAdaptiveTemplate is the simplified fallback prompt for social proof.
	SocialProofAdaptiveTemplate StageTemplate = "social_proof_adaptive.tpl.md"

	// ValuePropositionTemplate generates the core value proposition.
	ValuePropositionTemplate StageTemplate = "value_proposition.tpl.md"
	// ElevatorPitchTemplate generates the elevator pitch.
	ElevatorPitchTemplate StageTemplate = "elevator_pitch.tpl.md"
	// TaglinesTemplate generates tagline options.
	TaglinesTemplate StageTemplate = "taglines.tpl.md"
	// DifferentiatorsTemplate generates key differentiators.
	DifferentiatorsTemplate StageTemplate = "differentiators.tpl.md"

	// WebsiteHeadlinesTemplate generates website headline copy.
	WebsiteHeadlinesTemplate StageTemplate = "website_headlines.tpl.md"
	// LinkedInPostsTemplate generates LinkedIn post drafts.
	LinkedInPostsTemplate StageTemplate = "linkedin_posts.tpl.md"
	// EmailTemplatesTemplate generates outreach email drafts.
	EmailTemplatesTemplate StageTemplate = "email_templates.tpl.md"
	// SalesOneLinersTemplate generates sales one-liners.
	SalesOneLinersTemplate StageTemplate = "sales_one_liners.tpl.md"

	// QualityReviewTemplate scores the playbook across quality dimensions.
	QualityReviewTemplate StageTemplate = "quality_review.tpl.md"
	// CritiqueTemplate produces a structured critique of the playbook.
	CritiqueTemplate StageTemplate = "critique.tpl.md"
	// RefinementTemplate rewrites weak sections using critique feedback.
	RefinementTemplate StageTemplate = "refinement.tpl.md"
	// MetaReviewTemplate evaluates whether further reflection is worthwhile.
	MetaReviewTemplate StageTemplate = "meta_review.tpl.md"
)

//nolint:gochecknoglobals // Static template inventory
var allTemplates = []StageTemplate{
	DiscoveryTemplate,
	DiscoveryQuestionnaireTemplate,
	DiscoveryAdaptiveTemplate,
	CompetitorsTemplate,
	CompetitorsAdaptiveTemplate,
	PositioningTemplate,
	PositioningAdaptiveTemplate,
	TrustTemplate,
	TrustAdaptiveTemplate,
	EmotionalTemplate,
	EmotionalAdaptiveTemplate,
	SocialProofTemplate,
	SocialProofAdaptiveTemplate,
	ValuePropositionTemplate,
	ElevatorPitchTemplate,
	TaglinesTemplate,
	DifferentiatorsTemplate,
	WebsiteHeadlinesTemplate,
	LinkedInPostsTemplate,
	EmailTemplatesTemplate,
	SalesOneLinersTemplate,
	QualityReviewTemplate,
	CritiqueTemplate,
	RefinementTemplate,
	MetaReviewTemplate,
}

// Renderer handles prompt template rendering for pipeline stages.
type Renderer struct {
	templates map[StageTemplate]*template.Template
}

// NewRenderer creates a new template renderer with all stage templates loaded.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StageTemplate]*template.Template),
	}

	for _, name := range allTemplates {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"join":     strings.Join,
			"json": func(v any) string {
				b, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return fmt.Sprintf("%v", v)
				}
				return string(b)
			},
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StageTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []StageTemplate {
	templates := make([]StageTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}
