package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/middleware/metrics"
	"messagecraft/pkg/config"
)

func TestCreateClientOllama(t *testing.T) {
	factory := NewClientFactory(metrics.Nop())

	client, err := factory.CreateClient(&config.ModelCfg{
		Provider:       config.ProviderOllama,
		Name:           "llama3",
		MaxTokens:      1024,
		TimeoutSec:     30,
		MaxRetries:     2,
		RetryBackoffMS: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "llama3", client.GetModelName())
}

func TestCreateClientAnthropicRequiresKey(t *testing.T) {
	factory := NewClientFactory(nil)

	_, err := factory.CreateClient(&config.ModelCfg{
		Provider:  config.ProviderAnthropic,
		Name:      "claude-sonnet-4-5",
		APIKeyEnv: "MISSING_TEST_KEY_VAR",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestCreateClientUnknownProvider(t *testing.T) {
	t.Setenv("SOME_KEY", "x")
	factory := NewClientFactory(nil)

	_, err := factory.CreateClient(&config.ModelCfg{
		Provider:  "watson",
		Name:      "m",
		APIKeyEnv: "SOME_KEY",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestMockClientSequence(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "first"}, {Content: "second"}},
		[]error{nil, nil},
	)

	resp, err := mock.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = mock.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	_, err = mock.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)

	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "mock-model", mock.GetModelName())
}

func TestMockClientErrorsFirst(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "recovered"}},
		[]error{assert.AnError, nil},
	)

	_, err := mock.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)

	resp, err := mock.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
}
