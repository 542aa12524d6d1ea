// Package llmprovider abstracts chat completion behind one capability both
// the MessagePipeline and the CapabilityEvolutionEngine share: chat(messages,
// tools) -> {content?, reasoning_content?, tool_calls[], finish_reason}.
package llmprovider

import (
	"context"
	"encoding/json"

	"github.com/openrt/agentcore/pkg/models"
)

// ToolSchema is the provider-agnostic shape of one callable tool, mirroring
// toolregistry.Schema without importing it (avoids an import cycle between
// llmprovider and toolregistry).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Response is the normalized result of one chat call.
type Response struct {
	Content          string
	ReasoningContent string
	ToolCalls        []models.ToolCall
	FinishReason     string
	InputTokens      int
	OutputTokens     int
}

// Provider is the narrow LLM capability shared behind one handle by the
// pipeline and the evolution engine; neither owns the other (§9 "cyclic
// ownership between runtime and evolution engine").
type Provider interface {
	Chat(ctx context.Context, messages []models.ChatMessage, tools []ToolSchema) (*Response, error)
	Name() string
}
