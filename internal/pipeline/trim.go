package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openrt/agentcore/internal/compaction"
	"github.com/openrt/agentcore/pkg/models"
)

const (
	toolResultMaxLen    = 2400
	toolResultHeadLen   = 1600
	toolResultTailLen   = 800
	compressionTrigger  = 20
	compressionKeepEnd  = 10
	middleUserMaxLen    = 150
	middleAssistantLen  = 200
	pairedToolResultLen = 80
	webSearchMaxLines   = 8
	orphanTextMaxLen    = 160

	// historyTokenShare is the fraction of the model's context window the
	// working message array is allowed to occupy before mid-loop
	// compression kicks in on token count alone, independent of message
	// count.
	historyTokenShare = 0.6
)

// trimToolResult bounds a tool result to toolResultMaxLen by replacing the
// excess middle with an elision marker, keeping head and tail context.
func trimToolResult(s string) string {
	if len(s) <= toolResultMaxLen {
		return s
	}
	head := s[:toolResultHeadLen]
	tail := s[len(s)-toolResultTailLen:]
	return fmt.Sprintf("%s\n...[%d characters elided]...\n%s", head, len(s)-toolResultHeadLen-toolResultTailLen, tail)
}

// compressMessages applies mid-loop compression once the working message
// array exceeds compressionTrigger entries, or once it crosses
// historyTokenShare of the default context window even with fewer
// messages (a handful of large tool results can blow the budget long
// before compressionTrigger messages accumulate). system (index 0) and
// the preserved tail are kept verbatim; everything between is condensed
// in place.
//
// Within the condensed middle, an assistant message that made tool calls
// keeps its ToolCalls (only its text collapses to "[Called: ...]"), and
// the tool-result messages answering those calls condense to a short
// "[tool: text]" form right alongside it. A tool result is only run
// through the richer per-type condenseToolMessage when its originating
// assistant call fell outside the condensed middle (the tail, or a gap
// left by the split-point walk below) — otherwise a tool-role message
// could survive compression referencing a tool_calls id that no longer
// appears anywhere in the array, which a tool-calling LLM API rejects.
func compressMessages(messages []models.ChatMessage) []models.ChatMessage {
	overBudget := overTokenBudget(messages)
	if len(messages) <= compressionTrigger && !overBudget {
		return messages
	}

	// compressionKeepEnd assumes a long array (the count-trigger case).
	// When only the token trigger fired, the array may be too short for a
	// fixed 10-message tail to leave anything in the condensable middle —
	// shrink the tail window so the budget trigger actually condenses
	// something instead of being a no-op.
	keepEnd := compressionKeepEnd
	if overBudget && keepEnd >= len(messages)-1 {
		keepEnd = (len(messages) - 1) / 2
		if keepEnd < 1 {
			keepEnd = 1
		}
	}
	splitPoint := len(messages) - keepEnd
	if splitPoint < 1 {
		splitPoint = 1
	}

	// Walk the boundary backward so the preserved tail never starts with
	// an orphaned tool-result message: pull it (and the assistant call it
	// answers) back into the condensed middle instead. An assistant
	// message that itself made tool calls is an acceptable boundary — its
	// results simply follow in the tail, still paired.
	for splitPoint > 1 && messages[splitPoint].Role == models.RoleTool {
		splitPoint--
	}

	tailCallIDs := make(map[string]bool)
	for i := splitPoint; i < len(messages); i++ {
		for _, tc := range messages[i].ToolCalls {
			tailCallIDs[tc.ID] = true
		}
	}

	out := make([]models.ChatMessage, 0, len(messages))
	out = append(out, messages[0])

	for i := 1; i < splitPoint; {
		m := messages[i]
		switch {
		case m.Role == models.RoleUser:
			out = append(out, truncateText(m, middleUserMaxLen))
			i++
		case m.Role == models.RoleAssistant && len(m.ToolCalls) > 0:
			callIDs := make(map[string]bool, len(m.ToolCalls))
			names := make([]string, len(m.ToolCalls))
			for idx, tc := range m.ToolCalls {
				callIDs[tc.ID] = true
				names[idx] = tc.Name
			}
			compressed := m
			compressed.Content = "[Called: " + strings.Join(names, ", ") + "]"
			out = append(out, compressed)
			i++
			for i < splitPoint && messages[i].Role == models.RoleTool && callIDs[messages[i].ToolCallID] {
				out = append(out, condensePairedToolResult(messages[i]))
				i++
			}
		case m.Role == models.RoleAssistant:
			out = append(out, truncateText(m, middleAssistantLen))
			i++
		case m.Role == models.RoleTool:
			if tailCallIDs[m.ToolCallID] {
				out = append(out, condensePairedToolResult(m))
			} else {
				out = append(out, condenseToolMessage(m))
			}
			i++
		default:
			out = append(out, m)
			i++
		}
	}
	out = append(out, messages[splitPoint:]...)
	return out
}

// overTokenBudget estimates the working message array's token footprint
// against historyTokenShare of the default context window, using the same
// char-per-token heuristic as the rest of the context-compaction tooling.
func overTokenBudget(messages []models.ChatMessage) bool {
	window := compaction.ResolveContextWindowTokens(0, compaction.DefaultContextWindow)
	budget := int(float64(window) * historyTokenShare)
	return compaction.EstimateMessagesTokens(toCompactionMessages(messages)) > budget
}

func toCompactionMessages(messages []models.ChatMessage) []*compaction.Message {
	out := make([]*compaction.Message, len(messages))
	for i, m := range messages {
		cm := &compaction.Message{Role: string(m.Role), Content: m.Text()}
		if len(m.ToolCalls) > 0 {
			if raw, err := json.Marshal(m.ToolCalls); err == nil {
				cm.ToolCalls = string(raw)
			}
		}
		if m.Role == models.RoleTool {
			cm.ToolResults = cm.Content
			cm.Content = ""
		}
		out[i] = cm
	}
	return out
}

// truncateText bounds a plain message's text to max characters, appending
// an ellipsis marker when it trims anything.
func truncateText(m models.ChatMessage, max int) models.ChatMessage {
	text := m.Text()
	if len(text) > max {
		m.Content = text[:max] + "..."
	}
	return m
}

// condensePairedToolResult condenses a tool result whose originating
// assistant call survives in the condensed middle (or the preserved
// tail) to a short "[tool: text]" form — the result is still reachable
// from its tool_calls entry, so there's no need for the richer
// per-type treatment reserved for orphaned results.
func condensePairedToolResult(m models.ChatMessage) models.ChatMessage {
	text := m.Text()
	if len(text) > pairedToolResultLen {
		text = text[:pairedToolResultLen] + "..."
	}
	m.Content = fmt.Sprintf("[%s: %s]", m.Name, text)
	return m
}

// condenseToolMessage domain-condenses an orphaned tool-result message by
// the originating tool name.
func condenseToolMessage(m models.ChatMessage) models.ChatMessage {
	text := m.Text()
	switch m.Name {
	case "web_search":
		m.Content = condenseWebSearch(text)
	case "web_fetch":
		m.Content = trimToolResult(text)
	default:
		if len(text) > orphanTextMaxLen {
			m.Content = text[:orphanTextMaxLen] + "..."
		}
	}
	return m
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// condenseWebSearch renders up to webSearchMaxLines numbered
// title/url/snippet entries from a JSON search-result payload, falling
// back to plain truncation if the payload isn't the expected shape.
func condenseWebSearch(text string) string {
	var results []webSearchResult
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		if len(text) > orphanTextMaxLen {
			return text[:orphanTextMaxLen] + "..."
		}
		return text
	}
	if len(results) > webSearchMaxLines {
		results = results[:webSearchMaxLines]
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s — %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(sb.String(), "\n")
}
