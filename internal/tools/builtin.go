// Package tools registers the fixed set of built-in tool executors — file
// access, process execution, task inspection, and memory access — into a
// ToolRegistry. These are the tools every deployment gets regardless of
// which capabilities the evolution engine has since generated.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	execsafety "github.com/openrt/agentcore/internal/exec"
	"github.com/openrt/agentcore/internal/memstore"
	"github.com/openrt/agentcore/internal/taskmanager"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

// execTimeout bounds how long a single exec tool invocation may run.
const execTimeout = 20 * time.Second

// RegisterBuiltins adds every built-in tool to reg. Safe to call once per
// registry at startup.
func RegisterBuiltins(reg *toolregistry.Registry) error {
	tools := []*toolregistry.Tool{
		readFileTool(),
		writeFileTool(),
		editFileTool(),
		listDirTool(),
		execTool(),
		listTasksTool(),
		memoryQueryTool(),
		memoryUpsertTool(),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("tools: register %s: %w", t.Name, err)
		}
	}
	return nil
}

func resolvePath(tc toolregistry.ToolContext, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}
	return filepath.Clean(filepath.Join(tc.Workspace, raw)), nil
}

func readFileTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file within the workspace.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		Exec: func(_ context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("read_file: %w", err)
			}
			path, err := resolvePath(tc, in.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read_file: %w", err)
			}
			return json.Marshal(map[string]string{"content": string(data)})
		},
	}
}

func writeFileTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "write_file",
		Description: "Write (overwrite) a file within the workspace.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		Exec: func(_ context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			path, err := resolvePath(tc, in.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			return json.Marshal(map[string]bool{"ok": true})
		},
	}
}

func editFileTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "edit_file",
		Description: "Replace the first occurrence of a string in a file with another string.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"find":{"type":"string"},"replace":{"type":"string"}},"required":["path","find","replace"]}`),
		Exec: func(_ context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Path    string `json:"path"`
				Find    string `json:"find"`
				Replace string `json:"replace"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("edit_file: %w", err)
			}
			path, err := resolvePath(tc, in.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("edit_file: %w", err)
			}
			content := string(data)
			if !strings.Contains(content, in.Find) {
				return nil, fmt.Errorf("edit_file: find string not present in %s", in.Path)
			}
			updated := strings.Replace(content, in.Find, in.Replace, 1)
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return nil, fmt.Errorf("edit_file: %w", err)
			}
			return json.Marshal(map[string]bool{"ok": true})
		},
	}
}

func listDirTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory within the workspace.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		Exec: func(_ context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("list_dir: %w", err)
			}
			path, err := resolvePath(tc, in.Path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("list_dir: %w", err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return json.Marshal(map[string][]string{"entries": names})
		},
	}
}

// execTool runs a bare command (no shell) with sanitized arguments, mirroring
// the confirmation-gated dangerous-command policy enforced upstream in the
// pipeline's tool-call loop.
func execTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "exec",
		Description: "Run a command with arguments (no shell interpolation) and capture its output.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"},"args":{"type":"array","items":{"type":"string"}}},"required":["command"]}`),
		Exec: func(ctx context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Command string   `json:"command"`
				Args    []string `json:"args"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("exec: %w", err)
			}
			if !execsafety.IsSafeExecutableValue(in.Command) {
				return nil, fmt.Errorf("exec: unsafe command %q", in.Command)
			}
			for _, a := range in.Args {
				if !execsafety.IsSafeArgument(a) {
					return nil, fmt.Errorf("exec: unsafe argument %q", a)
				}
			}
			runCtx, cancel := context.WithTimeout(ctx, execTimeout)
			defer cancel()
			cmd := exec.CommandContext(runCtx, in.Command, in.Args...)
			cmd.Dir = tc.Workspace
			out, err := cmd.CombinedOutput()
			result := map[string]any{"output": string(out)}
			if err != nil {
				result["error"] = err.Error()
			}
			return json.Marshal(result)
		},
	}
}

func listTasksTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "list_tasks",
		Description: "List in-flight and recently completed background tasks.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		Exec: func(_ context.Context, tc toolregistry.ToolContext, _ json.RawMessage) (json.RawMessage, error) {
			mgr, ok := tc.TaskManager.(*taskmanager.Manager)
			if !ok || mgr == nil {
				return nil, fmt.Errorf("list_tasks: task manager unavailable")
			}
			return json.Marshal(mgr.ListTasks(nil))
		},
	}
}

func memoryQueryTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "memory_query",
		Description: "Search durable and session memory for relevant items.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"top_k":{"type":"integer"}},"required":["query"]}`),
		Exec: func(ctx context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			store, ok := tc.MemoryStore.(*memstore.Store)
			if !ok || store == nil {
				return nil, fmt.Errorf("memory_query: memory store unavailable")
			}
			var in struct {
				Query string `json:"query"`
				TopK  int    `json:"top_k"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("memory_query: %w", err)
			}
			if in.TopK <= 0 {
				in.TopK = 10
			}
			results, err := store.Query(ctx, models.QueryParams{Query: in.Query, TopK: in.TopK})
			if err != nil {
				return nil, fmt.Errorf("memory_query: %w", err)
			}
			return json.Marshal(results)
		},
	}
}

func memoryUpsertTool() *toolregistry.Tool {
	return &toolregistry.Tool{
		Name:        "memory_upsert",
		Description: "Store or update a durable memory item.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"type":{"type":"string"},"content":{"type":"string"},"title":{"type":"string"},
			"tags":{"type":"array","items":{"type":"string"}},"importance":{"type":"number"}
		},"required":["content"]}`),
		Exec: func(ctx context.Context, tc toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
			store, ok := tc.MemoryStore.(*memstore.Store)
			if !ok || store == nil {
				return nil, fmt.Errorf("memory_upsert: memory store unavailable")
			}
			var in struct {
				Type       string   `json:"type"`
				Content    string   `json:"content"`
				Title      string   `json:"title"`
				Tags       []string `json:"tags"`
				Importance float64  `json:"importance"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("memory_upsert: %w", err)
			}
			memType := models.MemoryType(in.Type)
			if memType == "" {
				memType = models.MemoryNote
			}
			item, err := store.Upsert(ctx, models.UpsertParams{
				Scope:      models.ScopeLongTerm,
				Type:       memType,
				Title:      in.Title,
				Content:    in.Content,
				Tags:       in.Tags,
				Source:     "tool:memory_upsert",
				SessionKey: tc.SessionKey,
				Importance: in.Importance,
			})
			if err != nil {
				return nil, fmt.Errorf("memory_upsert: %w", err)
			}
			return json.Marshal(item)
		},
	}
}
