package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaylane/router/internal/routing"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	executor := NewExecutor()
	registry, err := NewDefaultRegistry(executor, "", nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	return NewDispatcher(registry, executor, nil)
}

func TestDispatcherExecuteUnknownTool(t *testing.T) {
	d := newTestDispatcher(t)

	result, err := d.Execute(context.Background(), "not_a_tool", map[string]interface{}{}, routing.ToolContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestDispatcherExecuteMissingRequiredParam(t *testing.T) {
	d := newTestDispatcher(t)

	result, err := d.Execute(context.Background(), string(ToolBash), map[string]interface{}{}, routing.ToolContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for missing required param")
	}
}

func TestDispatcherExecuteRejectsStringForStructuredParam(t *testing.T) {
	d := newTestDispatcher(t)
	d.registry.byID["typed_tool"] = registration{
		def: routing.ToolDefinition{
			ID: "typed_tool",
			Parameters: map[string]routing.ParamSpec{
				"items": {Type: routing.ParamArray},
			},
			RequiredParams: []string{"items"},
		},
		tool:         &noopTool{},
		primaryParam: "",
	}

	result, err := d.Execute(context.Background(), "typed_tool", map[string]interface{}{"items": "not-an-array"}, routing.ToolContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected a string value to be rejected for an array param")
	}
}

func TestDispatcherExecuteBashSuccess(t *testing.T) {
	d := newTestDispatcher(t)

	result, err := d.Execute(context.Background(), string(ToolBash), map[string]interface{}{"command": "echo hi"}, routing.ToolContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
}

func TestDispatcherExecuteReadConfinedOutsideWorkspace(t *testing.T) {
	executor := NewExecutor()
	registry, err := NewDefaultRegistry(executor, "", nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	dir := t.TempDir()
	policy := executor.GetPolicy()
	policy.AllowedDirs = []string{dir}
	executor.SetPolicy(policy)
	d := NewDispatcher(registry, executor, nil)

	outsideDir := t.TempDir()
	blocked := filepath.Join(outsideDir, "outside-workspace.txt")
	if err := os.WriteFile(blocked, []byte("secret"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, _ := d.Execute(context.Background(), string(ToolRead), map[string]interface{}{"path": blocked}, routing.ToolContext{UserID: "u1"})
	if result.Success {
		t.Fatal("expected path outside AllowedDirs to be blocked")
	}
}

func TestDispatcherExecuteDivertsLongTimeoutToAsync(t *testing.T) {
	executor := NewExecutor()
	registry := NewRegistry()
	def := routing.ToolDefinition{
		ID:             "cli_delegate",
		Category:       string(categoryCLIDelegation),
		RequiredParams: []string{"prompt"},
		Parameters: map[string]routing.ParamSpec{
			"prompt": {Type: routing.ParamString},
		},
	}
	if err := registry.Register(def, &noopTool{}, "prompt"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(registry, executor, nil)

	// a declared timeout past the 210s sync threshold must divert rather
	// than clamp down to the category's 180s ceiling.
	params := map[string]interface{}{"prompt": "run the long job", "timeoutMs": float64(4 * 60 * 1000)}
	result, err := d.Execute(context.Background(), "cli_delegate", params, routing.ToolContext{UserID: "u1"})
	if err != ErrAsyncRequired {
		t.Fatalf("expected ErrAsyncRequired, got %v", err)
	}
	if !result.Async {
		t.Fatal("expected result to be flagged async")
	}
}

func TestDispatcherExecuteClampsTimeoutToCategoryCeiling(t *testing.T) {
	executor := NewExecutor()
	registry := NewRegistry()
	def := routing.ToolDefinition{
		ID:             "cli_delegate",
		Category:       string(categoryCLIDelegation),
		RequiredParams: []string{"prompt"},
		Parameters: map[string]routing.ParamSpec{
			"prompt": {Type: routing.ParamString},
		},
	}
	captured := &capturingTool{}
	if err := registry.Register(def, captured, "prompt"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := executor.Register(captured); err != nil {
		t.Fatalf("executor.Register: %v", err)
	}
	d := NewDispatcher(registry, executor, nil)

	// declared timeout is under the async threshold but over the
	// category's 180s ceiling; it must be clamped down, not diverted.
	params := map[string]interface{}{"prompt": "run it", "timeoutMs": float64(200 * 1000)}
	result, err := d.Execute(context.Background(), "cli_delegate", params, routing.ToolContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if captured.seenTimeout != 180*time.Second {
		t.Fatalf("expected timeout clamped to 180s, got %v", captured.seenTimeout)
	}
}

func TestValidateParamsRejectsEmptyRequiredString(t *testing.T) {
	def := routing.ToolDefinition{RequiredParams: []string{"path"}}
	err := validateParams(def, map[string]interface{}{"path": ""})
	if err == nil {
		t.Fatal("expected empty required string to fail validation")
	}
}

type noopTool struct{}

func (noopTool) Name() ToolType { return ToolType("noop") }
func (noopTool) Execute(ctx context.Context, req *ToolRequest) (*ToolResult, error) {
	return &ToolResult{Tool: req.Tool, Success: true}, nil
}
func (noopTool) Validate(req *ToolRequest) error       { return nil }
func (noopTool) AssessRisk(req *ToolRequest) RiskLevel { return RiskNone }

// capturingTool records the timeout it was actually invoked with.
type capturingTool struct {
	seenTimeout time.Duration
}

func (t *capturingTool) Name() ToolType { return ToolType("cli_delegate") }
func (t *capturingTool) Execute(ctx context.Context, req *ToolRequest) (*ToolResult, error) {
	t.seenTimeout = req.Timeout
	return &ToolResult{Tool: req.Tool, Success: true}, nil
}
func (t *capturingTool) Validate(req *ToolRequest) error       { return nil }
func (t *capturingTool) AssessRisk(req *ToolRequest) RiskLevel { return RiskNone }
