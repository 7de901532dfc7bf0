// Package openai provides an OpenAI completion client using the Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"opsagent/pkg/llm"
	"opsagent/pkg/llm/llmerrors"
)

// Client wraps the official OpenAI client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// New creates a new OpenAI client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the llm.Client interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// The Responses API takes a single input string; fold the conversation
	// into role-prefixed text.
	var inputText strings.Builder
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&inputText, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&inputText, "Assistant: %s\n\n", msg.Content)
		default:
			inputText.WriteString(msg.Content)
		}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText.String())},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received nil response from OpenAI")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from OpenAI")
	}

	return llm.CompletionResponse{
		Content:    content,
		StopReason: "end_turn",
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// classifyError maps OpenAI SDK errors to our structured error types. API
// errors carry an HTTP status; anything else falls back to message pattern
// matching.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.StatusCode, "OpenAI API rate limited")
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, "OpenAI API authentication failed")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.StatusCode, "OpenAI API rejected request")
		case 500, 502, 503:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.StatusCode, "OpenAI API temporarily unavailable")
		}
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "OpenAI API rate limited")
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "OpenAI API authentication failed")
	case strings.Contains(errStr, "400"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "OpenAI API rejected request")
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "OpenAI API temporarily unavailable")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "OpenAI API error")
	}
}
