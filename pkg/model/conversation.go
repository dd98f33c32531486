package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message in a conversation
type Role string

const (
	RoleSystem           Role = "system"
	RoleUser             Role = "user"
	RoleAssistant        Role = "assistant"
	RoleCapabilityResult Role = "capability-result"
)

// Message is a single entry of a conversation. Assistant messages may carry
// capability requests; capability-result messages carry exactly one result.
type Message struct {
	Role      Role                 `json:"role"`
	Text      string               `json:"text,omitempty"`
	Requests  []*CapabilityRequest `json:"requests,omitempty"`
	Result    *CapabilityResult    `json:"result,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// HasRequests reports whether the message asks for capability invocations
func (m *Message) HasRequests() bool {
	return m != nil && len(m.Requests) > 0
}

// NewSystemMessage creates a system message
func NewSystemMessage(text string) *Message {
	return &Message{Role: RoleSystem, Text: text, CreatedAt: time.Now()}
}

// NewUserMessage creates a user message
func NewUserMessage(text string) *Message {
	return &Message{Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message with optional capability requests
func NewAssistantMessage(text string, requests ...*CapabilityRequest) *Message {
	return &Message{Role: RoleAssistant, Text: text, Requests: requests, CreatedAt: time.Now()}
}

// NewResultMessage wraps a capability result into a conversation message
func NewResultMessage(result *CapabilityResult) *Message {
	return &Message{Role: RoleCapabilityResult, Result: result, CreatedAt: time.Now()}
}

// Conversation is an append-only sequence of messages for a single turn.
// Messages are never modified or removed once appended.
type Conversation struct {
	ID       string
	messages []*Message
}

// NewConversation starts a conversation with the fixed system instructions and the user query
func NewConversation(systemPrompt, query string) *Conversation {
	conv := &Conversation{ID: uuid.New().String()}
	if systemPrompt != "" {
		conv.messages = append(conv.messages, NewSystemMessage(systemPrompt))
	}
	conv.messages = append(conv.messages, NewUserMessage(query))
	return conv
}

// Append extends the conversation
func (c *Conversation) Append(msgs ...*Message) {
	for _, msg := range msgs {
		if msg != nil {
			c.messages = append(c.messages, msg)
		}
	}
}

// Messages returns a copy of the message list
func (c *Conversation) Messages() []*Message {
	out := make([]*Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message or nil for an empty conversation
func (c *Conversation) Last() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// SystemPrompt returns the text of the system message, if any
func (c *Conversation) SystemPrompt() string {
	for _, msg := range c.messages {
		if msg.Role == RoleSystem {
			return msg.Text
		}
	}
	return ""
}

// Query returns the text of the first user message
func (c *Conversation) Query() string {
	for _, msg := range c.messages {
		if msg.Role == RoleUser {
			return msg.Text
		}
	}
	return ""
}

// conversationJSON is the serialized form used for transcripts
type conversationJSON struct {
	ID       string     `json:"id"`
	Messages []*Message `json:"messages"`
}

// Transcript returns a serializable snapshot of the conversation
func (c *Conversation) Transcript() any {
	return conversationJSON{ID: c.ID, Messages: c.Messages()}
}
