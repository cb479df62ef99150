package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "tools")

// CollisionWarning reports a registration that replaced a tool with the same name.
type CollisionWarning struct {
	Name     string
	Replaced ITool
	By       ITool
}

func (w CollisionWarning) String() string {
	return fmt.Sprintf("tool %q registered more than once, the last registration wins", w.Name)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStrictRegistration makes Register fail on duplicate names.
// Use Replace to acknowledge an intentional override.
func WithStrictRegistration() RegistryOption {
	return func(r *Registry) {
		r.strict = true
	}
}

// Registry holds the tools available to one loop invocation.
// Names are matched case-insensitively.
type Registry struct {
	lock       sync.RWMutex
	byName     map[string]ITool
	collisions []CollisionWarning
	strict     bool
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName: make(map[string]ITool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRegistryWithTools returns a Registry with the given tools,
// logging any name collisions.
func NewRegistryWithTools(list ...ITool) (*Registry, error) {
	r := NewRegistry()
	if _, err := r.Register(list...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools. A tool with the name of an existing one replaces it
// and a CollisionWarning is returned for it; in strict mode the whole call
// fails with chatmodel.ErrConfiguration and nothing is registered.
func (r *Registry) Register(list ...ITool) ([]CollisionWarning, error) {
	return r.register(false, list)
}

// Replace adds tools, acknowledging that they may override existing ones.
func (r *Registry) Replace(list ...ITool) []CollisionWarning {
	warnings, _ := r.register(true, list)
	return warnings
}

func (r *Registry) register(ack bool, list []ITool) ([]CollisionWarning, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	seen := make(map[string]ITool, len(list))
	var warnings []CollisionWarning
	for _, tool := range list {
		if tool == nil || tool.Name() == "" {
			return nil, chatmodel.NewConfigurationError("tool name is required")
		}
		key := strings.ToLower(tool.Name())
		prev := seen[key]
		if prev == nil {
			prev = r.byName[key]
		}
		if prev != nil {
			warnings = append(warnings, CollisionWarning{Name: tool.Name(), Replaced: prev, By: tool})
		}
		seen[key] = tool
	}

	if len(warnings) > 0 && r.strict && !ack {
		return warnings, chatmodel.NewConfigurationError("duplicate tool registration: %s", warnings[0].Name)
	}

	for _, tool := range list {
		r.byName[strings.ToLower(tool.Name())] = tool
	}
	for _, w := range warnings {
		metricskey.StatsToolCollisions.IncrCounter(1, w.Name)
		logger.KV(xlog.WARNING,
			"status", "tool_shadowed",
			"tool", w.Name,
			"acknowledged", ack,
		)
	}
	r.collisions = append(r.collisions, warnings...)
	return warnings, nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := strings.ToLower(name)
	_, ok := r.byName[key]
	delete(r.byName, key)
	return ok
}

// Collisions returns all collisions seen since the Registry was created.
func (r *Registry) Collisions() []CollisionWarning {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.collisions)
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (ITool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if tool := r.byName[strings.ToLower(name)]; tool != nil {
		return tool, nil
	}
	return nil, chatmodel.ErrToolNotFound
}

// Tools returns the registered tools ordered by name.
func (r *Registry) Tools() []ITool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.byName))
	for k := range r.byName {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	list := make([]ITool, len(keys))
	for i, k := range keys {
		list[i] = r.byName[k]
	}
	return list
}

// List returns the tool descriptors ordered by name.
func (r *Registry) List() []chatmodel.ToolDefinition {
	list := r.Tools()
	defs := make([]chatmodel.ToolDefinition, len(list))
	for i, t := range list {
		defs[i] = Definition(t)
	}
	return defs
}

// Names returns the registered tool names ordered by name.
func (r *Registry) Names() []string {
	list := r.Tools()
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name()
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.byName)
}

// Execute runs one tool call and always returns exactly one result with the
// call's ID. Failures, including panics in the tool, are returned as
// failed results. The arguments are passed to the tool unvalidated.
func (r *Registry) Execute(ctx context.Context, call chatmodel.ToolCall) (res chatmodel.ToolResult) {
	tool, err := r.Resolve(call.Name)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, call.Name)
		available := strings.Join(r.Names(), ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool_name", call.Name,
			"available_tools", available,
		)
		return chatmodel.NewFailure(call.ID, call.Name, chatmodel.FailureToolNotFound,
			fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", call.Name, available))
	}

	started := time.Now()
	defer func() {
		metricskey.PerfToolCall.MeasureSince(started, call.Name)
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "tool_panic",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"panic", fmt.Sprint(rec),
			)
			res = chatmodel.NewFailure(call.ID, call.Name, chatmodel.FailureToolError, "internal error")
		}
		if res.Failure != nil {
			metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name, string(res.Failure.Kind))
		} else {
			metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.Name)
		}
	}()

	content, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_call_failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"err", err.Error(),
		)
		return chatmodel.NewFailureResult(call.ID, call.Name, err)
	}
	return chatmodel.NewToolResult(call.ID, call.Name, content...)
}
