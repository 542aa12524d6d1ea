package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/pkg/models"
)

// buildGenerationPrompt constructs the LLM prompt for one generation attempt,
// including a replay of prior failures so the model does not repeat them.
func buildGenerationPrompt(r *models.EvolutionRecord) string {
	var b strings.Builder
	b.WriteString("You are a capability evolution engine for a self-augmenting agent runtime. ")
	b.WriteString("Generate executable code that satisfies the capability request below. ")
	b.WriteString("Respond with code only in the fenced block requested; do not include prose outside the fences.\n\n")

	fmt.Fprintf(&b, "## Capability Request\nid: %s\ndescription: %s\nkind: %s\n\n", r.CapabilityID, r.Description, r.Kind)

	switch r.Kind {
	case models.KindExternalAPI:
		b.WriteString("## Requirements\n")
		b.WriteString("Write a Python 3 script using only standard-library modules. ")
		b.WriteString("Read the request payload from the CAPABILITY_INPUT environment variable as a JSON string. ")
		b.WriteString("Write a single JSON value to stdout and exit 0 on success; exit non-zero on failure.\n\n")
		b.WriteString("## Output Format\nReturn the script in a single ```python fenced block and nothing else.\n\n")
	case models.KindRhaiScript:
		b.WriteString("## Requirements\n")
		b.WriteString("Write a small scripting-language snippet with a single top-level function named `run` ")
		b.WriteString("that accepts one parameter named `input` and returns a value. Keep it free of external ")
		b.WriteString("I/O; it runs inside an embedded interpreter.\n\n")
		b.WriteString("## Output Format\nReturn the snippet in a single ```rhai fenced block and nothing else.\n\n")
	case models.KindDynamicLib:
		b.WriteString("## Requirements\n")
		b.WriteString("Write a Go source file for package main declaring an exported package-level variable named ")
		b.WriteString("`Capability` whose value has the method `Invoke(input []byte) ([]byte, error)`, compiled ")
		b.WriteString("with -buildmode=plugin. Keep it free of cgo.\n\n")
		b.WriteString("## Output Format\nReturn the source in a single ```go fenced block and nothing else.\n\n")
	default: // Process, BuiltIn
		b.WriteString("## Requirements\n")
		b.WriteString("Write a bash script beginning with #!/bin/bash. Read the request payload as a JSON ")
		b.WriteString("string from stdin, write a single JSON value to stdout, and exit 0 on success; ")
		b.WriteString("exit non-zero on failure.\n\n")
		b.WriteString("## Output Format\nReturn the script in a single ```bash fenced block and nothing else.\n\n")
	}

	b.WriteString("## Schema Requirement\n")
	b.WriteString("After the code block, append one more fenced block tagged ```json containing exactly:\n")
	b.WriteString(`{"input_schema": {...JSON Schema...}, "output_schema": {...JSON Schema...}}` + "\n\n")

	if len(r.FeedbackHistory) > 0 {
		b.WriteString("## Previous Attempts (FAILED — fix these issues)\n")
		for _, f := range r.FeedbackHistory {
			fmt.Fprintf(&b, "### Attempt %d (%s)\nIssue: %s\n", f.Attempt, f.Stage, f.Feedback)
			if f.PreviousCode != "" {
				fmt.Fprintf(&b, "Previous code:\n```\n%s\n```\n", f.PreviousCode)
			}
		}
		b.WriteString("\nFix ALL the issues above. Do NOT repeat the same mistakes.\n")
	}

	return b.String()
}

// fenceMarkersFor returns the fence-language tags generateCode should look
// for, in priority order, for a given capability kind.
func fenceMarkersFor(kind models.CapabilityKind) []string {
	switch kind {
	case models.KindExternalAPI:
		return []string{"```python", "```py"}
	case models.KindRhaiScript:
		return []string{"```rhai"}
	case models.KindDynamicLib:
		return []string{"```go"}
	default:
		return []string{"```bash", "```sh", "```shell"}
	}
}

// extractFenced returns the content of the first fenced block whose opening
// marker is in markers, or the first fenced block of any kind as a fallback.
func extractFenced(response string, markers []string) (string, bool) {
	for _, marker := range markers {
		if idx := strings.Index(response, marker); idx != -1 {
			rest := response[idx+len(marker):]
			if end := strings.Index(rest, "```"); end != -1 {
				return strings.TrimSpace(rest[:end]), true
			}
		}
	}
	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
			if end := strings.Index(rest, "```"); end != -1 {
				return strings.TrimSpace(rest[:end]), true
			}
		}
	}
	return "", false
}

// extractSchemas pulls the trailing ```json {input_schema, output_schema}
// block out of a generation response, if present.
func extractSchemas(response string) (input, output []byte, ok bool) {
	block, found := extractFenced(response, []string{"```json"})
	if !found {
		return nil, nil, false
	}
	var parsed struct {
		InputSchema  map[string]any `json:"input_schema"`
		OutputSchema map[string]any `json:"output_schema"`
	}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return nil, nil, false
	}
	in, err1 := json.Marshal(parsed.InputSchema)
	out, err2 := json.Marshal(parsed.OutputSchema)
	if err1 != nil || err2 != nil {
		return nil, nil, false
	}
	return in, out, true
}

// generateCode asks provider for one attempt's source, returning both the
// extracted code and the raw response (the latter still carries the trailing
// schema block the caller extracts separately).
func generateCode(ctx context.Context, provider llmprovider.Provider, r *models.EvolutionRecord) (code string, raw string, err error) {
	prompt := buildGenerationPrompt(r)
	resp, err := provider.Chat(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return "", "", fmt.Errorf("evolution: generation call failed: %w", err)
	}
	raw = resp.Content
	code, ok := extractFenced(raw, fenceMarkersFor(r.Kind))
	if !ok {
		return "", raw, fmt.Errorf("evolution: no fenced code block found in generation response")
	}
	return code, raw, nil
}
