package tools

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"researchnerd/internal/logging"
	"researchnerd/internal/schema"
	"researchnerd/internal/types"
)

// Registry maps tool names to tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[string]*Tool{}}
}

// Register adds tools. Nothing is added when any of them is invalid or
// already present.
func (r *Registry) Register(ts ...*Tool) error {
	for _, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid tool: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range ts {
		_, taken := r.byKey[t.Name]
		if taken || slices.ContainsFunc(ts[:i], func(o *Tool) bool { return o.Name == t.Name }) {
			return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.Name)
		}
	}
	for _, t := range ts {
		r.byKey[t.Name] = t
		logging.ToolsDebug("tool %s registered", t.Name)
	}
	return nil
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[name]
	return t, ok
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Definitions lists what is offered to the model, ordered by name so requests
// are stable across runs.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defs := make([]types.ToolDefinition, 0, len(r.byKey))
	for _, t := range r.byKey {
		defs = append(defs, t.Definition())
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b types.ToolDefinition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return defs
}

// Call runs one model tool request. Unknown tools, rejected input and tool
// failures all come back as a *ToolExecutionError in Invocation.Err.
func (r *Registry) Call(ctx context.Context, call types.ToolCall) Invocation {
	inv := Invocation{CallID: call.ID, Tool: call.Name}
	start := time.Now()

	t, ok := r.Lookup(call.Name)
	if !ok {
		inv.Err = &ToolExecutionError{Tool: call.Name, Err: ErrToolNotFound}
		inv.Elapsed = time.Since(start)
		return inv
	}

	args := call.Input
	if args == nil {
		args = map[string]any{}
	}
	if t.Input != nil {
		if err := schema.Validate(args, t.Input); err != nil {
			inv.Err = &ToolExecutionError{Tool: t.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArgs, err)}
			inv.Elapsed = time.Since(start)
			return inv
		}
	}

	out, err := t.Execute(ctx, args)
	inv.Elapsed = time.Since(start)
	if err != nil {
		inv.Err = &ToolExecutionError{Tool: t.Name, Err: err}
		return inv
	}
	inv.Output = out
	logging.ToolsDebug("tool %s (%s) ok in %v", t.Name, call.ID, inv.Elapsed)
	return inv
}

// Executor adapts the registry to the callback the LLM clients drive.
func (r *Registry) Executor() types.ToolExecutor {
	return func(ctx context.Context, call types.ToolCall) (string, error) {
		inv := r.Call(ctx, call)
		if inv.Err != nil {
			logging.ToolsWarn("tool %s (%s) failed after %v: %v", inv.Tool, inv.CallID, inv.Elapsed, inv.Err)
			return "", inv.Err
		}
		return inv.Output, nil
	}
}
