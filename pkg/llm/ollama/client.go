// Package ollama provides an Ollama-backed completion client and embedder.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"opsagent/pkg/llm"
	"opsagent/pkg/llm/llmerrors"
)

// Client wraps the Ollama API client to implement llm.Client and llm.Embedder.
type Client struct {
	client     *api.Client
	model      string
	embedModel string
	hostURL    string
}

// New creates a new Ollama client. hostURL should be the Ollama server URL
// (e.g., "http://localhost:11434"). embedModel is used for Embed calls and
// may differ from the chat model.
func New(hostURL, model, embedModel string) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		// Fall back to default if URL is invalid
		parsedURL, _ = url.Parse("http://localhost:11434")
	}

	return &Client{
		client:     api.NewClient(parsedURL, http.DefaultClient),
		model:      model,
		embedModel: embedModel,
		hostURL:    hostURL,
	}
}

// Complete implements the llm.Client interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false // We don't stream in Complete()
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if response.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
	}, nil
}

// Embed implements the llm.Embedder interface using the configured
// embedding model.
func (o *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.embedModel,
		Input: text,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty embedding from Ollama")
	}

	return resp.Embeddings[0], nil
}

// GetModelName returns the chat model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("Ollama model not found: %v", err))
	case strings.Contains(errStr, "context canceled"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("request canceled: %v", err))
	case strings.Contains(errStr, "timeout"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("request timeout: %v", err))
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("Ollama API error: %v", err))
	}
}
