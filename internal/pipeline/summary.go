package pipeline

import (
	"strings"

	"github.com/openrt/agentcore/pkg/models"
)

const summaryMaxLen = 800

// buildExtractiveSummary renders the last user/assistant exchange as a
// "Q: ... -> A: ..." line, capped at summaryMaxLen characters. Returns ""
// if no such exchange can be found.
func buildExtractiveSummary(history []models.ChatMessage) string {
	var lastUser, lastAssistant string
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if lastAssistant == "" && m.Role == models.RoleAssistant && m.Text() != "" {
			lastAssistant = m.Text()
			continue
		}
		if lastAssistant != "" && lastUser == "" && m.Role == models.RoleUser {
			lastUser = m.Text()
			break
		}
	}
	if lastUser == "" || lastAssistant == "" {
		return ""
	}
	summary := "Q: " + lastUser + " -> A: " + lastAssistant
	if len(summary) > summaryMaxLen {
		summary = summary[:summaryMaxLen-3] + "..."
	}
	return strings.TrimSpace(summary)
}
