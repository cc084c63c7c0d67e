package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
)

// timeoutCategory buckets tool definitions for the per-category ceilings.
type timeoutCategory string

const (
	categoryGeneric       timeoutCategory = "generic"
	categoryShell         timeoutCategory = "shell"
	categoryFileTransfer  timeoutCategory = "file-transfer"
	categoryCLIDelegation timeoutCategory = "cli-delegation"
)

var categoryTimeouts = map[timeoutCategory]time.Duration{
	categoryGeneric:       30 * time.Second,
	categoryShell:         60 * time.Second,
	categoryFileTransfer:  60 * time.Second,
	categoryCLIDelegation: 180 * time.Second,
}

const defaultCategoryTimeout = 30 * time.Second

// asyncThreshold is the synchronous ceiling: any tool invocation whose
// declared timeout exceeds it is diverted to the async CLI manager instead
// of blocking the caller. 3.5 minutes, chosen to leave slack before the
// reasoning loop's own 4-minute cap.
const asyncThreshold = 210 * time.Second

// ErrAsyncRequired signals that an invocation's requested timeout exceeds
// asyncThreshold; the caller must route the invocation to the async CLI
// manager rather than wait on it inline.
var ErrAsyncRequired = errors.New("tool invocation exceeds synchronous threshold")

func timeoutFor(category string) time.Duration {
	if d, ok := categoryTimeouts[timeoutCategory(category)]; ok {
		return d
	}
	return defaultCategoryTimeout
}

// registration pairs a tool's definition and implementation with the
// params key that feeds ToolRequest.Input.
type registration struct {
	def          routing.ToolDefinition
	tool         Tool
	primaryParam string
}

// Registry holds the orthogonal id->definition and id->executor maps
// described by the tool dispatcher's contract.
type Registry struct {
	byID map[string]registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]registration)}
}

// Register adds a tool under def.ID. primaryParam names the params key
// whose value becomes ToolRequest.Input (e.g. "command" for bash); pass ""
// if the tool has no single primary input.
func (r *Registry) Register(def routing.ToolDefinition, tool Tool, primaryParam string) error {
	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("tool %q already registered", def.ID)
	}
	r.byID[def.ID] = registration{def: def, tool: tool, primaryParam: primaryParam}
	return nil
}

func (r *Registry) lookup(id string) (registration, bool) {
	reg, ok := r.byID[id]
	return reg, ok
}

// Definitions returns every registered tool's definition, for exposing the
// registry to a provider's native function-calling tools list.
func (r *Registry) Definitions() []routing.ToolDefinition {
	defs := make([]routing.ToolDefinition, 0, len(r.byID))
	for _, reg := range r.byID {
		defs = append(defs, reg.def)
	}
	return defs
}

// CallResult is the outcome of a dispatched tool call: {success, result|error}
// plus an Async flag when the invocation was diverted rather than run.
type CallResult struct {
	Success bool
	Result  string
	Error   string
	Async   bool
}

// Dispatcher validates a (toolId, params, ctx) call against the registry and
// runs it through an Executor's security pipeline. It never mutates ctx.
type Dispatcher struct {
	registry *Registry
	executor *Executor
	log      *logging.Logger
}

// NewDispatcher builds a Dispatcher over registry and executor.
func NewDispatcher(registry *Registry, executor *Executor, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Dispatcher{registry: registry, executor: executor, log: log.WithComponent("tools")}
}

// Execute implements the tool dispatcher's execute(toolId, params, ctx)
// contract: registry lookup, required-param presence/type validation,
// per-category timeout, async diversion above asyncThreshold, then the
// Executor's validate/security/risk/confirm/timeout pipeline.
func (d *Dispatcher) Execute(ctx context.Context, toolID string, params map[string]interface{}, tctx routing.ToolContext) (*CallResult, error) {
	reg, ok := d.registry.lookup(toolID)
	if !ok {
		return &CallResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", toolID)}, nil
	}

	if err := validateParams(reg.def, params); err != nil {
		return &CallResult{Success: false, Error: err.Error()}, nil
	}

	ceiling := timeoutFor(reg.def.Category)
	requested := ceiling
	if ms, ok := params["timeoutMs"].(float64); ok && ms > 0 {
		requested = time.Duration(ms) * time.Millisecond
	}
	if requested > asyncThreshold {
		d.log.WithField("toolId", toolID).WithField("userId", tctx.UserID).Debug("tool timeout exceeds synchronous threshold, diverting to async path")
		return &CallResult{Success: false, Async: true, Error: ErrAsyncRequired.Error()}, ErrAsyncRequired
	}
	timeout := requested
	if timeout > ceiling {
		timeout = ceiling
	}

	req := &ToolRequest{
		Tool:    ToolType(toolID),
		Input:   stringParam(params, reg.primaryParam),
		Params:  params,
		Timeout: timeout,
	}

	result, err := d.executor.Execute(ctx, req)
	if result == nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		return &CallResult{Success: false, Error: msg}, err
	}
	return &CallResult{Success: result.Success, Result: result.Output, Error: result.Error}, err
}

func stringParam(params map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// validateParams implements the dispatcher's three-step validation: the
// tool exists (handled by the caller before this is reached), every
// requiredParam is present and non-empty, and a structured (array/object)
// type is never satisfied by a bare string.
func validateParams(def routing.ToolDefinition, params map[string]interface{}) error {
	for _, name := range def.RequiredParams {
		v, ok := params[name]
		if !ok || isEmptyParam(v) {
			return fmt.Errorf("missing required param %q", name)
		}
		if spec, ok := def.Parameters[name]; ok {
			if err := checkParamType(name, spec.Type, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func isEmptyParam(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// checkParamType rejects a string supplied where the definition mandates a
// structured type. Values are never coerced between types.
func checkParamType(name string, want routing.ParamType, v interface{}) error {
	switch want {
	case routing.ParamArray:
		if _, ok := v.([]interface{}); !ok {
			return fmt.Errorf("param %q must be an array", name)
		}
	case routing.ParamObject:
		if _, ok := v.(map[string]interface{}); !ok {
			return fmt.Errorf("param %q must be an object", name)
		}
	}
	return nil
}
