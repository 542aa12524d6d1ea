package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}

func looksLikeJSON(data []byte) bool {
	var v any
	return json.Unmarshal(bytes.TrimSpace(data), &v) == nil
}

// capabilityExecTimeout bounds a single live invocation of a generated
// capability, independent of the shorter dry-run validation timeout.
const capabilityExecTimeout = 30 * time.Second

// buildExecutor returns the toolregistry.Executor a compiled-and-validated
// capability is registered under, dispatching on the record's kind. The
// returned executor is what Engine.loadCapability registers (or swaps into
// place via toolregistry.Registry.ReplaceExecutor when the name is already
// registered) on Active, and what Rollback rebinds.
func buildExecutor(r *models.EvolutionRecord) (toolregistry.Executor, error) {
	switch r.Kind {
	case models.KindProcess, models.KindBuiltIn:
		return processExecutor(r.ArtifactPath), nil
	case models.KindExternalAPI:
		return externalAPIExecutor(r.ArtifactPath), nil
	case models.KindRhaiScript:
		return nil, fmt.Errorf("evolution: RhaiScript capability %s has no in-process interpreter available to bind a live executor", r.CapabilityID)
	case models.KindDynamicLib:
		compiledPath := r.ArtifactPath
		if strings.HasSuffix(compiledPath, ".go") {
			compiledPath = strings.TrimSuffix(compiledPath, ".go") + ".so"
		}
		return dynamicLibraryExecutor(compiledPath), nil
	default:
		return nil, fmt.Errorf("evolution: unknown capability kind %q", r.Kind)
	}
}

func processExecutor(scriptPath string) toolregistry.Executor {
	return func(ctx context.Context, _ toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, capabilityExecTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "bash", scriptPath)
		cmd.Stdin = bytes.NewReader(params)
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("evolution: process capability failed: %w", err)
		}
		return json.RawMessage(out), nil
	}
}

func externalAPIExecutor(scriptPath string) toolregistry.Executor {
	return func(ctx context.Context, _ toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, capabilityExecTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "python3", scriptPath)
		cmd.Env = append(os.Environ(), "CAPABILITY_INPUT="+string(params))
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("evolution: external-api capability failed: %w", err)
		}
		return json.RawMessage(out), nil
	}
}

func dynamicLibraryExecutor(soPath string) toolregistry.Executor {
	return func(_ context.Context, _ toolregistry.ToolContext, params json.RawMessage) (json.RawMessage, error) {
		cap, err := loadDynamicLibrary(soPath)
		if err != nil {
			return nil, fmt.Errorf("evolution: load plugin: %w", err)
		}
		out, err := cap.Invoke(params)
		if err != nil {
			return nil, fmt.Errorf("evolution: plugin invoke: %w", err)
		}
		return json.RawMessage(out), nil
	}
}
