package models

import (
	"encoding/json"
	"time"
)

// Attachment is a piece of media carried by an inbound or outbound message.
type Attachment struct {
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// InboundMessage is produced by an ingress channel adapter. Immutable once
// produced; SessionKey is derived, never set by the producer.
type InboundMessage struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	Content   string         `json:"content"`
	Media     []Attachment   `json:"media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp_ms"`
}

// SessionKey is the channel:chat_id tuple identifying a conversation.
func (m *InboundMessage) SessionKey() string {
	return SessionKey(m.Channel, m.ChatID)
}

// SessionKey builds the channel:chat_id tuple used to key sessions and
// session-scoped memory.
func SessionKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// MetaBool reads a boolean routing hint out of Metadata, defaulting to false.
func (m *InboundMessage) MetaBool(key string) bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// MetaString reads a string routing hint out of Metadata.
func (m *InboundMessage) MetaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	v, ok := m.Metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// OutboundMessage is emitted by the pipeline toward an egress channel.
type OutboundMessage struct {
	Channel string       `json:"channel"`
	ChatID  string       `json:"chat_id"`
	Content string       `json:"content"`
	Media   []Attachment `json:"media,omitempty"`
}

// GhostChannel is the synthetic channel used for autonomous/background
// routines whose output is delivered exclusively via streamed events.
const GhostChannel = "ghost"

// ChatRole is the role tag of a ChatMessage.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// ToolCall is a single function-call request emitted by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatMessage is one entry in a persisted session transcript. Content may
// hold plain text or a structured array (e.g. multi-part tool content);
// callers that only deal in text use Text() to normalize.
type ChatMessage struct {
	Role             ChatRole   `json:"role"`
	Content          any        `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	Name             string     `json:"name,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
}

// Text normalizes Content to a string, returning "" for non-string payloads.
func (c *ChatMessage) Text() string {
	if s, ok := c.Content.(string); ok {
		return s
	}
	return ""
}

// SessionMetadata is the first line of an on-disk session file.
type SessionMetadata struct {
	Type      string         `json:"_type"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
