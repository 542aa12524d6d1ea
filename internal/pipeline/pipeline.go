package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openrt/agentcore/internal/confirm"
	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

// SkillRunner executes a sandboxed skill script synchronously, used by the
// fast path when metadata.skill_rhai is set. Implemented by the evolution
// engine's script-capability machinery.
type SkillRunner interface {
	RunScript(ctx context.Context, name string, input string) (string, error)
}

// isCore reports whether name is in the fixed core tool list.
func isCore(name string) bool {
	for _, c := range CoreToolNames {
		if c == name {
			return true
		}
	}
	return false
}

// Process runs the full MessagePipeline state machine for one inbound
// message, returning the final user-facing text.
func (p *Pipeline) Process(ctx context.Context, msg models.InboundMessage, skills SkillRunner) (text string, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		p.deps.Metrics.RecordMessage(msg.Channel, outcome, time.Since(start).Seconds())
	}()

	// 1. Fast paths — neither enters the LLM loop.
	if msg.MetaBool("skill_rhai") {
		return p.runSkillFastPath(ctx, msg, skills)
	}
	if msg.MetaBool("reminder") {
		return p.runReminderFastPath(msg)
	}

	sessionKey := msg.SessionKey()

	// 2. Session load.
	history, sessMeta, err := p.deps.Sessions.Load(sessionKey)
	if err != nil {
		p.deps.Log.Warn("pipeline: session load failed, starting fresh", "session_key", sessionKey, "error", err)
	}

	// 3. Intent classification + toggles.
	tags := classifyIntent(msg.Content)
	disabledTools, _ := loadToggles(p.cfg.TogglesFile)
	isGhost := msg.Channel == models.GhostChannel

	// 4. Prompt assembly.
	brief := p.memoryBrief(ctx)
	system := p.buildSystemPrompt(brief, tags)
	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: msg.Content})

	// 5. Tool catalogue for this turn.
	requested := filterDisabled(toolNamesForIntent(tags, isGhost), disabledTools)
	upgraded := make(map[string]bool)

	// 6. Tool-call loop.
	gate := confirm.NewGate(p.cfg.Workspace)
	finalText, sentMediaMessage, evolutionFailed := p.runToolCallLoop(ctx, &messages, requested, upgraded, gate, sessionKey, msg.Content)

	// 7. Post-processing.
	finalText = stripFakeToolCalls(finalText)

	// 8. Image-auto-send fallback.
	var outMedia []string
	if path, ok := applyImageAutoSendFallback(msg.Channel, tags, sentMediaMessage, messages, p.cfg.MediaDir, &finalText); ok {
		outMedia = append(outMedia, path)
	}

	// 9. Session persistence.
	if err := p.deps.Sessions.Save(sessionKey, messages, sessMeta); err != nil {
		p.deps.Log.Warn("pipeline: session save failed", "session_key", sessionKey, "error", err)
	}

	// 10. Summary upsert.
	if len(messages) >= p.cfg.HistorySummaryMin {
		if summary := buildExtractiveSummary(messages); summary != "" {
			if _, err := p.deps.Memory.Upsert(ctx, models.UpsertParams{
				Scope:      models.ScopeShortTerm,
				Type:       models.MemorySummary,
				Content:    summary,
				Source:     "pipeline",
				SessionKey: sessionKey,
				Importance: 0.3,
				DedupKey:   "summary." + sessionKey,
			}); err != nil {
				p.deps.Log.Warn("pipeline: summary upsert failed", "session_key", sessionKey, "error", err)
			}
		}
	}

	// 11. Emit final outbound.
	if msg.Channel != models.GhostChannel {
		select {
		case p.deps.Outbound <- models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: finalText, Media: outMedia}:
		default:
			p.deps.Log.Warn("pipeline: outbound channel full, dropping reply", "channel", msg.Channel, "chat_id", msg.ChatID)
		}
	}

	if evolutionFailed {
		return finalText, errors.New("pipeline: completed with a degraded LLM response")
	}
	return finalText, nil
}

func (p *Pipeline) runSkillFastPath(ctx context.Context, msg models.InboundMessage, skills SkillRunner) (string, error) {
	name := msg.MetaString("skill_name")
	if skills == nil {
		return "", fmt.Errorf("pipeline: skill_rhai requested but no skill runner configured")
	}
	out, err := skills.RunScript(ctx, name, msg.Content)
	if err != nil {
		return "", fmt.Errorf("pipeline: skill %q failed: %w", name, err)
	}
	text := "[skill: " + name + "]\n" + out
	p.emit(msg, text)
	return text, nil
}

func (p *Pipeline) runReminderFastPath(msg models.InboundMessage) (string, error) {
	jobName := msg.MetaString("job_name")
	text := fmt.Sprintf("⏰ [%s] %s", jobName, msg.Content)
	p.emit(msg, text)
	return text, nil
}

func (p *Pipeline) emit(msg models.InboundMessage, text string) {
	if msg.Channel == models.GhostChannel {
		return
	}
	select {
	case p.deps.Outbound <- models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: text}:
	default:
		p.deps.Log.Warn("pipeline: outbound channel full on fast path", "channel", msg.Channel)
	}
}

func (p *Pipeline) memoryBrief(ctx context.Context) string {
	if p.deps.Memory == nil {
		return ""
	}
	brief, err := p.deps.Memory.GenerateBrief(ctx, 20, 10)
	if err != nil {
		p.deps.Log.Warn("pipeline: brief generation failed", "error", err)
		return ""
	}
	return brief
}

func (p *Pipeline) buildSystemPrompt(brief string, tags map[string]bool) string {
	system := "You are an autonomous agent runtime. Use tools when they help answer the request."
	if brief != "" {
		system += "\n\n" + brief
	}
	if cap := p.capabilityBrief(); cap != "" {
		system += "\n\n### Capabilities\n" + cap
	}
	for tag, on := range tags {
		if on && tag == "exec" {
			system += "\n\nThe user's request may require running a shell command; confirm destructive operations."
		}
	}
	return system
}

func (p *Pipeline) capabilityBrief() string {
	if p.deps.CapabilityBrief == nil {
		return ""
	}
	return p.deps.CapabilityBrief()
}

// runToolCallLoop drives steps 6a-6f of the MessagePipeline contract.
// Returns (finalText, sentMediaMessage, evolutionFailed).
func (p *Pipeline) runToolCallLoop(ctx context.Context, messages *[]models.ChatMessage, requested []string, upgraded map[string]bool, gate *confirm.Gate, sessionKey string, messageText string) (string, bool, bool) {
	sentMediaMessage := false
	iteration := 0

	for {
		if iteration >= p.cfg.MaxToolIterations {
			return p.forceFinalAnswer(ctx, *messages), sentMediaMessage, false
		}

		schemas := p.deps.Tools.GetTieredSchemas(withUpgrades(requested, upgraded), withUpgrades(CoreToolNames, upgraded))
		resp, err := p.chatWithRetry(ctx, *messages, toLLMSchemas(schemas))
		if err != nil {
			if p.deps.Evolution != nil {
				p.deps.Evolution.ReportFailure(ctx, "__llm_provider__", err.Error())
			}
			return apologyText(p.cfg.LLMMaxRetries), sentMediaMessage, true
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, sentMediaMessage, false
		}

		assistantIdx := len(*messages)
		*messages = append(*messages, models.ChatMessage{Role: models.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		needsUpgrade := false
		for _, tc := range resp.ToolCalls {
			resultText, upgradeName := p.dispatchToolCall(ctx, tc, gate, upgraded, sessionKey, messageText)
			if upgradeName != "" {
				needsUpgrade = true
				upgraded[upgradeName] = true
			}
			if tc.Name == "message" && messageCallHasMedia(tc) {
				sentMediaMessage = true
			}
			*messages = append(*messages, models.ChatMessage{
				Role: models.RoleTool, Content: resultText, ToolCallID: tc.ID, Name: tc.Name,
			})
		}

		if needsUpgrade {
			*messages = (*messages)[:assistantIdx]
			continue
		}

		iteration++
		*messages = compressMessages(*messages)
	}
}

func (p *Pipeline) forceFinalAnswer(ctx context.Context, messages []models.ChatMessage) string {
	forced := append(append([]models.ChatMessage{}, messages...), models.ChatMessage{
		Role: models.RoleUser, Content: "produce final answer, do not call tools",
	})
	resp, err := p.chatWithRetry(ctx, forced, nil)
	if err != nil {
		return apologyText(p.cfg.LLMMaxRetries)
	}
	return resp.Content
}

func (p *Pipeline) chatWithRetry(ctx context.Context, messages []models.ChatMessage, tools []llmprovider.ToolSchema) (*llmprovider.Response, error) {
	retrying := llmprovider.WithRetry(p.deps.LLM, p.cfg.LLMMaxRetries, time.Duration(p.cfg.LLMRetryDelayMs)*time.Millisecond)
	return retrying.Chat(ctx, messages, tools)
}

func apologyText(retries int) string {
	return fmt.Sprintf("Sorry, I couldn't reach the language model after %d attempts. Please try again shortly.", retries+1)
}

// dispatchToolCall runs the path-safety check, the dangerous-operation
// gate, and execution for one tool call, returning the tool-result text
// and (if the dynamic-supplement mechanism should fire) the tool name that
// needs a full schema next iteration.
func (p *Pipeline) dispatchToolCall(ctx context.Context, tc models.ToolCall, gate *confirm.Gate, upgraded map[string]bool, sessionKey string, messageText string) (string, string) {
	_, exists := p.deps.Tools.Get(tc.Name)
	lightweight := exists && !isCore(tc.Name) && !upgraded[tc.Name]

	if !exists {
		return fmt.Sprintf("unknown tool: %s", tc.Name), ""
	}

	p.deps.Audit.LogToolInvocation(ctx, tc.Name, tc.ID, tc.Arguments, sessionKey)

	if lightweight {
		if err := p.deps.Tools.Validate(tc.Name, tc.Arguments); err != nil {
			return fmt.Sprintf("validation failed: %v", err), tc.Name
		}
	}

	for _, raw := range extractPathArgs(tc.Arguments) {
		resolved := gate.ResolvePath(raw, homeDir())
		if gate.CheckPath(resolved) {
			continue
		}
		decision, err := gate.RequestPathConfirmation(p.deps.Confirm, resolved, messageText)
		granted := err == nil && decision == confirm.DecisionAllowed
		p.deps.Audit.LogPermissionDecision(ctx, granted, "path_access", resolved, tc.Name, string(decision), sessionKey)
		if !granted {
			return "Permission denied", ""
		}
	}

	if tc.Name == "exec" {
		if cmd := extractExecCommand(tc.Arguments); confirm.IsDangerousExec(cmd) {
			decision, err := confirm.RequestDangerousOpConfirmation(p.deps.Confirm, "dangerous exec command: "+cmd, messageText)
			granted := err == nil && decision == confirm.DecisionAllowed
			p.deps.Audit.LogPermissionDecision(ctx, granted, "dangerous_exec", cmd, tc.Name, string(decision), sessionKey)
			if !granted {
				return "Permission denied: dangerous command blocked", ""
			}
		}
	}
	if tc.Name == "file_ops" || tc.Name == "write_file" || tc.Name == "edit_file" {
		op, path := extractFileOp(tc.Arguments)
		if confirm.IsDangerousFileOp(op, path) {
			decision, err := confirm.RequestDangerousOpConfirmation(p.deps.Confirm, "dangerous file operation on "+path, messageText)
			granted := err == nil && decision == confirm.DecisionAllowed
			p.deps.Audit.LogPermissionDecision(ctx, granted, "dangerous_file_op", path, tc.Name, string(decision), sessionKey)
			if !granted {
				return "Permission denied: dangerous file operation blocked", ""
			}
		}
	}

	start := time.Now()
	tc2, err := p.deps.Tools.Execute(ctx, tc.Name, toolregistry.ToolContext{
		Workspace:   p.cfg.Workspace,
		SessionKey:  sessionKey,
		TaskManager: p.deps.Tasks,
		MemoryStore: p.deps.Memory,
	}, tc.Arguments)
	duration := time.Since(start)

	if err != nil {
		p.deps.Metrics.RecordTool(tc.Name, "error", duration.Seconds())
		p.deps.Audit.LogToolCompletion(ctx, tc.Name, tc.ID, false, err.Error(), duration, sessionKey)
		if p.deps.Evolution != nil && !errors.Is(err, toolregistry.ErrUnknownTool) {
			p.deps.Evolution.ReportFailure(ctx, tc.Name, err.Error())
		}
		p.deps.Log.Debug("pipeline: tool execution failed", "tool", tc.Name, "duration", duration, "error", err)
		return fmt.Sprintf("tool error: %v", err), ""
	}
	p.deps.Metrics.RecordTool(tc.Name, "ok", duration.Seconds())
	p.deps.Audit.LogToolCompletion(ctx, tc.Name, tc.ID, true, string(tc2), duration, sessionKey)
	p.deps.Log.Debug("pipeline: tool execution succeeded", "tool", tc.Name, "duration", duration)
	return trimToolResult(string(tc2)), ""
}

func withUpgrades(requested []string, upgraded map[string]bool) []string {
	out := append([]string{}, requested...)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for name := range upgraded {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

func toLLMSchemas(schemas []toolregistry.Schema) []llmprovider.ToolSchema {
	out := make([]llmprovider.ToolSchema, len(schemas))
	for i, s := range schemas {
		out[i] = llmprovider.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}

func messageCallHasMedia(tc models.ToolCall) bool {
	var args struct {
		Media []string `json:"media"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		return false
	}
	return len(args.Media) > 0
}

func extractExecCommand(args json.RawMessage) string {
	var a struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(args, &a)
	return a.Command
}

func extractFileOp(args json.RawMessage) (op, path string) {
	var a struct {
		Operation string `json:"operation"`
		Path      string `json:"path"`
	}
	_ = json.Unmarshal(args, &a)
	return a.Operation, a.Path
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "/root"
}
