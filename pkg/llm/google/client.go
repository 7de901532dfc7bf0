// Package google provides a Gemini completion client backed by the
// google.golang.org/genai SDK.
package google

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"opsagent/pkg/llm"
	"opsagent/pkg/llm/llmerrors"
)

// Client wraps the genai client to implement llm.Client. The underlying
// SDK client is created lazily because genai.NewClient requires a context.
type Client struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// New creates a new Gemini client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

func (g *Client) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	g.client = client
	return client, nil
}

// Complete implements the llm.Client interface.
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	client, err := g.getClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	systemPrompt, contents := splitSystemMessages(in.Messages)

	temp := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	text := result.Text()
	if text == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Gemini")
	}

	return llm.CompletionResponse{
		Content:    text,
		StopReason: "end_turn",
	}, nil
}

// GetModelName returns the model name for this client.
func (g *Client) GetModelName() string {
	return g.model
}

// splitSystemMessages extracts system content to a single prompt and maps
// the remaining conversation to Gemini contents. Gemini uses the role
// "model" for assistant turns.
func splitSystemMessages(messages []llm.Message) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return strings.Join(systemParts, "\n\n"), contents
}

// classifyError maps genai SDK errors to our structured error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "Gemini API rate limited")
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "API key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "Gemini API authentication failed")
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "INVALID_ARGUMENT"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Gemini API rejected request")
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "UNAVAILABLE") || strings.Contains(errStr, "DEADLINE_EXCEEDED"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Gemini API temporarily unavailable")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API error")
	}
}
