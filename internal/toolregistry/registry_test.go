package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`),
		Exec: func(_ context.Context, _ ToolContext, params json.RawMessage) (json.RawMessage, error) {
			return params, nil
		},
	}
}

func TestRegisterAndExecute(t *testing.T) {
	r := New()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	out, err := r.Execute(context.Background(), "echo", ToolContext{}, json.RawMessage(`{"x":"hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(out) != `{"x":"hi"}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), "missing", ToolContext{}, nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegisterInvalidSchema(t *testing.T) {
	r := New()
	tool := echoTool("bad")
	tool.Parameters = json.RawMessage(`{not json`)
	if err := r.Register(tool); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestGetTieredSchemas(t *testing.T) {
	r := New()
	r.Register(echoTool("read_file"))
	r.Register(echoTool("side_tool"))

	schemas := r.GetTieredSchemas([]string{"read_file", "side_tool"}, []string{"read_file"})
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
	var full, light *Schema
	for i := range schemas {
		switch schemas[i].Name {
		case "read_file":
			full = &schemas[i]
		case "side_tool":
			light = &schemas[i]
		}
	}
	if full == nil || len(full.Parameters) == 0 {
		t.Fatal("core tool should carry full parameters")
	}
	if light == nil || len(light.Parameters) != 0 {
		t.Fatal("non-core tool should carry no parameters")
	}
}

func TestReplaceExecutor(t *testing.T) {
	r := New()
	r.Register(echoTool("t"))
	called := false
	err := r.ReplaceExecutor("t", func(_ context.Context, _ ToolContext, _ json.RawMessage) (json.RawMessage, error) {
		called = true
		return json.RawMessage(`"new"`), nil
	})
	if err != nil {
		t.Fatalf("ReplaceExecutor: %v", err)
	}
	out, err := r.Execute(context.Background(), "t", ToolContext{}, nil)
	if err != nil || !called || string(out) != `"new"` {
		t.Fatalf("replaced executor not in effect: out=%s called=%v err=%v", out, called, err)
	}
}

func TestReplaceExecutorUnknown(t *testing.T) {
	r := New()
	if err := r.ReplaceExecutor("nope", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestValidateAgainstCompiledSchema(t *testing.T) {
	r := New()
	tool := &Tool{
		Name:        "memory_upsert",
		Description: "store a memory item",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}},"required":["content"]}`),
		Exec:        func(_ context.Context, _ ToolContext, params json.RawMessage) (json.RawMessage, error) { return params, nil },
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate("memory_upsert", json.RawMessage(`{"content":"hi"}`)); err != nil {
		t.Fatalf("expected valid payload to pass, got %v", err)
	}
	if err := r.Validate("memory_upsert", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected missing required field to fail validation")
	}
}

func TestValidateToolWithNoSchemaAlwaysPasses(t *testing.T) {
	r := New()
	r.Register(&Tool{Name: "no_schema", Exec: func(_ context.Context, _ ToolContext, p json.RawMessage) (json.RawMessage, error) { return p, nil }})
	if err := r.Validate("no_schema", json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("expected no-schema tool to always validate, got %v", err)
	}
}
