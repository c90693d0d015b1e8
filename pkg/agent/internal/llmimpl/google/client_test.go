package google

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/llmerrors"
)

func TestConvertMessagesToGemini(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("be concise"),
		llm.NewUserMessage("question"),
		{Role: llm.RoleAssistant, Content: "answer"},
		llm.NewUserMessage("followup"),
	}

	contents, system, err := convertMessagesToGemini(messages)
	require.NoError(t, err)
	assert.Equal(t, "be concise", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
}

func TestConvertMessagesMergesSystem(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("first"),
		llm.NewSystemMessage("second"),
		llm.NewUserMessage("question"),
	}

	_, system, err := convertMessagesToGemini(messages)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", system)
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	_, _, err := convertMessagesToGemini(nil)
	require.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected llmerrors.ErrorType
	}{
		{"quota", "googleapi: Error 429: quota exceeded", llmerrors.ErrorTypeRateLimit},
		{"auth", "googleapi: Error 403: API key not valid", llmerrors.ErrorTypeAuth},
		{"bad request", "googleapi: Error 400: invalid argument", llmerrors.ErrorTypeBadPrompt},
		{"unavailable", "googleapi: Error 503: service unavailable", llmerrors.ErrorTypeTransient},
		{"unknown", "something else", llmerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError(errors.New(tt.errMsg))
			assert.Equal(t, tt.expected, llmerrors.TypeOf(classified))
		})
	}
}

func TestGetModelName(t *testing.T) {
	client := NewGeminiClient("key", "gemini-2.0-flash")
	assert.Equal(t, "gemini-2.0-flash", client.GetModelName())
}
