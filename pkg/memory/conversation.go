// Package memory holds the agent's per-session state: a bounded
// conversation history and a monotonic set of extracted entities.
package memory

import (
	"sync"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultConversationSize bounds the retained conversation messages.
const DefaultConversationSize = 20

// Message is one immutable conversation turn.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Conversation is a bounded FIFO message history. When full, the oldest
// message is dropped.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
	max      int
}

// NewConversation creates a history retaining at most max messages. A max
// of zero or less uses DefaultConversationSize.
func NewConversation(max int) *Conversation {
	if max <= 0 {
		max = DefaultConversationSize
	}
	return &Conversation{max: max}
}

// Append records a message, evicting the oldest when at capacity.
func (c *Conversation) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if len(c.messages) > c.max {
		c.messages = c.messages[len(c.messages)-c.max:]
	}
}

// Messages returns a copy of the retained messages, oldest first.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Clear empties the history.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
