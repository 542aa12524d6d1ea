package llmprovider

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/openrt/agentcore/pkg/models"
)

func TestConvertMessagesPullsOutSystem(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be helpful"},
		{Role: models.RoleUser, Content: "hi"},
	}
	var system string
	out, err := convertMessages(messages, &system)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if system != "be helpful" {
		t.Fatalf("expected system pulled out, got %q", system)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(out))
	}
}

func TestConvertMessagesAssistantCarriesToolUse(t *testing.T) {
	messages := []models.ChatMessage{
		{
			Role:    models.RoleAssistant,
			Content: "let me check",
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "web_search", Arguments: json.RawMessage(`{"q":"golang"}`)},
			},
		},
	}
	var system string
	out, err := convertMessages(messages, &system)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(out))
	}
	turn := out[0]
	if turn.Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("expected assistant role, got %v", turn.Role)
	}
	if len(turn.Content) != 2 {
		t.Fatalf("expected text + tool_use blocks, got %d", len(turn.Content))
	}
	toolUse := turn.Content[1].OfToolUse
	if toolUse == nil {
		t.Fatalf("expected second block to be a tool_use block")
	}
	if toolUse.ID != "call_1" || toolUse.Name != "web_search" {
		t.Fatalf("unexpected tool_use block: %+v", toolUse)
	}
}

func TestConvertMessagesMergesConsecutiveToolResultsIntoOneTurn(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "a", Arguments: json.RawMessage(`{}`)},
			{ID: "call_2", Name: "b", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: models.RoleTool, ToolCallID: "call_1", Name: "a", Content: "result a"},
		{Role: models.RoleTool, ToolCallID: "call_2", Name: "b", Content: "result b"},
	}
	var system string
	out, err := convertMessages(messages, &system)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected assistant turn + one merged user turn, got %d turns", len(out))
	}
	resultsTurn := out[1]
	if resultsTurn.Role != anthropic.MessageParamRoleUser {
		t.Fatalf("expected merged tool results on a user turn, got %v", resultsTurn.Role)
	}
	if len(resultsTurn.Content) != 2 {
		t.Fatalf("expected both tool_result blocks merged into one turn, got %d blocks", len(resultsTurn.Content))
	}
	first := resultsTurn.Content[0].OfToolResult
	second := resultsTurn.Content[1].OfToolResult
	if first == nil || second == nil {
		t.Fatalf("expected both blocks to be tool_result blocks")
	}
	if first.ToolUseID != "call_1" || second.ToolUseID != "call_2" {
		t.Fatalf("expected tool_result blocks to carry their originating call ids, got %q and %q", first.ToolUseID, second.ToolUseID)
	}
}

func TestConvertMessagesToolCallArgumentErrorPropagates(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "bad", Arguments: json.RawMessage(`not json`)},
		}},
	}
	var system string
	if _, err := convertMessages(messages, &system); err == nil {
		t.Fatalf("expected error for invalid tool call arguments")
	}
}
