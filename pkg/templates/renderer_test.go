package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRendererLoadsAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	assert.Len(t, r.GetAvailableTemplates(), len(allTemplates))
}

func TestRenderDiscovery(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(DiscoveryTemplate, &TemplateData{
		BusinessDescription: "Handmade ceramic mugs sold online",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Handmade ceramic mugs sold online")
	assert.Contains(t, out, "target_audience")
	// The standard path never mentions questionnaire-only fields
	assert.NotContains(t, out, "customer_emotions")
}

func TestRenderDiscoveryQuestionnaire(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(DiscoveryQuestionnaireTemplate, &TemplateData{
		BusinessDescription: "CRM for dentists",
		Questionnaire:       "Q: Who buys? A: Practice owners.",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Questionnaire Responses")
	assert.Contains(t, out, "Practice owners")
	// The questionnaire path asks for the enriched profile fields
	assert.Contains(t, out, "customer_emotions")
	assert.Contains(t, out, "communication_platforms")
}

func TestRenderCritiqueWithPoints(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(CritiqueTemplate, &TemplateData{
		Cycle:            2,
		QualityThreshold: 8.0,
		QualityReport:    `{"overall_score": 6.5}`,
		Messaging:        `{"value_proposition": "..."}`,
		CritiquePoints:   []string{"taglines too generic", "no proof points"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Cycle 2")
	assert.Contains(t, out, "taglines too generic")
	assert.Contains(t, out, "8")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(StageTemplate("missing.tpl.md"), &TemplateData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAdaptiveTemplatesAreSimpler(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{BusinessDescription: "test business"}
	primary, err := r.Render(DiscoveryTemplate, data)
	require.NoError(t, err)
	adaptive, err := r.Render(DiscoveryAdaptiveTemplate, data)
	require.NoError(t, err)

	assert.Less(t, len(adaptive), len(primary))
	assert.True(t, strings.Contains(adaptive, "ONLY valid JSON"))
}
