package evolution

import (
	"fmt"
	"strings"

	"github.com/openrt/agentcore/pkg/models"
)

// CapabilityBrief renders a short status block describing capabilities
// currently mid-evolution or recently blocked, for inclusion in the
// pipeline's system prompt via Dependencies.CapabilityBrief. Returns "" when
// there is nothing worth surfacing.
func (e *Engine) CapabilityBrief() string {
	all, err := e.store.all()
	if err != nil || len(all) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var lines []string
	for _, r := range all {
		if seen[r.CapabilityID] {
			continue
		}
		switch r.Status {
		case models.EvoBlocked:
			seen[r.CapabilityID] = true
			lines = append(lines, fmt.Sprintf("- %s: blocked (%s)", r.CapabilityID, r.Description))
		default:
			if r.Status.NonTerminal() {
				seen[r.CapabilityID] = true
				lines = append(lines, fmt.Sprintf("- %s: evolving (%s)", r.CapabilityID, r.Status))
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Capability evolution status:\n" + strings.Join(lines, "\n")
}
