// Package llm defines the language model interfaces consumed by the agent
// and resilience wrappers layering retry and circuit breaking over any
// provider implementation.
package llm

import "context"

// Role represents the role of a message in a conversation.
type Role string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser indicates a message from the human user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant Role = "assistant"
)

// Message represents a message in a completion request.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// Client defines the interface for language model completions.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Embedder defines the interface for text embedding generation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewCompletionRequest creates a completion request with default values.
func NewCompletionRequest(messages []Message) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
