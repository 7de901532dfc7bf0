// Package anthropic provides an Anthropic Claude completion client.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"opsagent/pkg/llm"
	"opsagent/pkg/llm/llmerrors"
)

// Client wraps the Anthropic API client to implement llm.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a new Claude client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements the llm.Client interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// Anthropic takes system prompts as a top-level parameter, not a message.
	systemPrompt, messages := splitSystemMessages(in.Messages)

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(in.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Claude API")
	}

	var responseText strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			responseText.WriteString(block.AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:    responseText.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return string(c.model)
}

// splitSystemMessages extracts system content to a single prompt and maps
// the remaining conversation to Anthropic message params.
func splitSystemMessages(messages []llm.Message) (string, []anthropic.MessageParam) {
	var systemParts []string
	params := make([]anthropic.MessageParam, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		params = append(params, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	return strings.Join(systemParts, "\n\n"), params
}

// classifyError maps Anthropic SDK errors to our structured error types.
// API errors carry an HTTP status; anything else falls back to message
// pattern matching.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.StatusCode, "Claude API rate limited")
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, "Claude API authentication failed")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.StatusCode, "Claude API rejected request")
		case 500, 502, 503, 529:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.StatusCode, "Claude API temporarily unavailable")
		}
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "Claude API rate limited")
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "Claude API authentication failed")
	case strings.Contains(errStr, "400"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Claude API rejected request")
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "overloaded"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Claude API temporarily unavailable")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Claude API error")
	}
}
