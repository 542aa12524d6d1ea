// Package toolregistry is the name-keyed catalogue of tool descriptors and
// executors that the MessagePipeline dispatches against.
package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownTool is returned by Execute for an unregistered name, and
// advertised verbatim to the LLM rather than reported to evolution.
var ErrUnknownTool = errors.New("unknown tool")

// ToolContext is passed to every executor. Handles beyond workspace/session
// identifiers are capabilities granted to the tool; an executor may assume
// presence only of the handles its own schema documents needing.
type ToolContext struct {
	Workspace         string
	BuiltinSkillsDir  string
	SessionKey        string
	Channel           string
	ChatID            string
	Config            map[string]any
	Permissions       map[string]bool
	TaskManager       any
	MemoryStore       any
	OutboundTx        chan<- any
	SpawnHandle       any
	CapabilityRegistry any
	CoreEvolution     any
}

// Executor runs one tool invocation.
type Executor func(ctx context.Context, tc ToolContext, params json.RawMessage) (json.RawMessage, error)

// Tool is one registered entry: schema plus executor.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema for the "parameters" field
	Exec        Executor
}

// Schema is what gets handed to an LLM provider as a callable function.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Registry is a thread-safe, name-keyed tool catalogue.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	compiled map[string]*jsonschema.Schema
}

func New() *Registry {
	return &Registry{tools: make(map[string]*Tool), compiled: make(map[string]*jsonschema.Schema)}
}

// Register validates the tool's parameter schema (if present), compiles and
// caches it for runtime Validate calls, and adds the tool to the catalogue,
// replacing any existing entry with the same name.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return errors.New("toolregistry: tool name must not be empty")
	}
	var schema *jsonschema.Schema
	if len(t.Parameters) > 0 {
		compiled, err := jsonschema.CompileString(t.Name+"#", string(t.Parameters))
		if err != nil {
			return fmt.Errorf("toolregistry: invalid schema for %q: %w", t.Name, err)
		}
		schema = compiled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	if schema != nil {
		r.compiled[t.Name] = schema
	} else {
		delete(r.compiled, t.Name)
	}
	return nil
}

// Unregister removes a tool from the catalogue.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.compiled, name)
}

// Validate checks params against the registered tool's compiled JSON
// Schema, if any. A tool with no parameter schema always validates. Used by
// the pipeline's dynamic-supplement path to detect an LLM call made against
// a lightweight-schema tool with a malformed argument payload.
func (r *Registry) Validate(name string, params json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("toolregistry: invalid JSON arguments for %q: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("toolregistry: arguments for %q failed validation: %w", name, err)
	}
	return nil
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToolNames returns every registered name.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// GetTieredSchemas emits a full schema for every requested name that is also
// in core, and a lightweight schema (name + description, no parameters) for
// everything else. Unregistered requested names are silently skipped — the
// caller only ever requests names it already resolved from the registry.
func (r *Registry) GetTieredSchemas(requested []string, core []string) []Schema {
	coreSet := make(map[string]bool, len(core))
	for _, c := range core {
		coreSet[c] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(requested))
	for _, name := range requested {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		if coreSet[name] {
			schemas = append(schemas, Schema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		} else {
			schemas = append(schemas, Schema{Name: t.Name, Description: t.Description})
		}
	}
	return schemas
}

// Execute runs the named tool's executor, returning ErrUnknownTool (wrapped)
// for unregistered names.
func (r *Registry) Execute(ctx context.Context, name string, tc ToolContext, params json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Exec(ctx, tc, params)
}

// ReplaceExecutor atomically swaps the executor bound to an existing tool
// name — used by capability rollback (§4.5) to rebind a capability to a
// restored artifact without a window where the name resolves to nothing.
func (r *Registry) ReplaceExecutor(name string, exec Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	replaced := *t
	replaced.Exec = exec
	r.tools[name] = &replaced
	return nil
}
