package skillrt

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RunScript evaluates the named skill's SKILL.rhai body and satisfies
// pipeline.SkillRunner. No Rhai binding exists anywhere in this module's
// dependency set (see DESIGN.md), so the script language here is reduced to
// a minimal, deliberately non-Turing-complete line form: each non-blank,
// non-comment line is a `say("literal text");` statement, with
// `{{field}}` placeholders substituted from the decoded input object. This
// is sufficient for the fast path's purpose — a pre-authored, deterministic
// reply — without pretending to run arbitrary script logic unsandboxed.
func (m *Manager) RunScript(_ context.Context, name string, input string) (string, error) {
	skill, ok := m.Get(name)
	if !ok {
		return "", fmt.Errorf("skillrt: unknown skill %q", name)
	}
	if strings.TrimSpace(skill.ScriptBody) == "" {
		return "", fmt.Errorf("skillrt: skill %q has no SKILL.rhai body", name)
	}

	var fields map[string]any
	if input != "" {
		if err := json.Unmarshal([]byte(input), &fields); err != nil {
			return "", fmt.Errorf("skillrt: decode skill input: %w", err)
		}
	}

	var out []string
	scanner := bufio.NewScanner(strings.NewReader(skill.ScriptBody))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		literal, ok := parseSayStatement(line)
		if !ok {
			continue
		}
		out = append(out, substitute(literal, fields))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("skillrt: scan skill script: %w", err)
	}
	return strings.Join(out, "\n"), nil
}

// parseSayStatement extracts the quoted literal from a `say("...");` line.
func parseSayStatement(line string) (string, bool) {
	const prefix = `say("`
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	rest := line[len(prefix):]
	end := strings.LastIndex(rest, `")`)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// substitute replaces every {{field}} placeholder with fields[field]'s
// string form, leaving unknown placeholders untouched.
func substitute(literal string, fields map[string]any) string {
	if len(fields) == 0 {
		return literal
	}
	for key, val := range fields {
		placeholder := "{{" + key + "}}"
		if strings.Contains(literal, placeholder) {
			literal = strings.ReplaceAll(literal, placeholder, fmt.Sprintf("%v", val))
		}
	}
	return literal
}
