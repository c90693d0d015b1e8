package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/agent"
)

func TestRunDiscoveryStandardPrompt(t *testing.T) {
	client := agent.NewMockLLMClient(mockResponses(sufficientJSON), nil)
	e := NewExecutor(client, newTestRenderer(t), nil, 0, 0)
	st := NewState("s1", "construction software", "")

	e.RunDiscovery(context.Background(), st)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "# Business Discovery Analysis")
	assert.NotContains(t, prompt, "customer_emotions")
}

func TestRunDiscoveryQuestionnaireEnrichedPrompt(t *testing.T) {
	client := agent.NewMockLLMClient(mockResponses(sufficientJSON), nil)
	e := NewExecutor(client, newTestRenderer(t), nil, 0, 0)
	st := NewState("s1", "construction software", "Q: Who is your customer?\nA: Mid-size general contractors.")

	e.RunDiscovery(context.Background(), st)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "# Business Profile From Questionnaire")
	assert.Contains(t, prompt, "Mid-size general contractors.")
	// The enriched schema asks for the questionnaire-only signals
	assert.Contains(t, prompt, "customer_emotions")
	assert.Contains(t, prompt, "transformation")
	assert.Contains(t, prompt, "communication_platforms")
}

func TestRunDiscoveryQuestionnairePlaceholderEnriched(t *testing.T) {
	client := agent.NewMockLLMClient(nil, []error{assert.AnError, assert.AnError})
	e := NewExecutor(client, newTestRenderer(t), nil, 0, 0)
	st := NewState("s1", "construction software", "Q: tone?\nA: direct.")

	e.RunDiscovery(context.Background(), st)

	assert.Contains(t, st.Discovery, "fallback_reason")
	assert.Contains(t, st.Discovery, "customer_emotions")
	assert.Contains(t, st.Discovery, "transformation")
	assert.Contains(t, st.Discovery, "communication_platforms")
}
