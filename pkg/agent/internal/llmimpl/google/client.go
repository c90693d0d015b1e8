// Package google provides Google Gemini client implementation for LLM interface.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"messagecraft/pkg/agent/llm"
	"messagecraft/pkg/agent/llmerrors"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient interface.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClient creates a new Gemini client with specific model (raw client, middleware applied at higher level).
func NewGeminiClient(apiKey, model string) llm.LLMClient {
	// Client creation requires context, so defer it to Complete()
	return &GeminiClient{
		client: nil,
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}

	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if result == nil || result.Text() == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	if result.UsageMetadata != nil {
		resp.TokensIn = int(result.UsageMetadata.PromptTokenCount)
		resp.TokensOut = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini converts our message format to Gemini's Content format.
// Returns contents array and optional system instruction.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return contents, systemInstruction, nil
}

// classifyError maps Gemini API errors to our structured error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "quota") || strings.Contains(lower, "resource exhausted"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limit exceeded")
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid argument"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "bad request")
	case strings.Contains(lower, "500") || strings.Contains(lower, "503") || strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server or network error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
}
