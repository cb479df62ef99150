package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// RunContext carries the identity of one loop invocation to tools and callbacks.
type RunContext interface {
	RunID() string
	// AppData returns immutable app data
	AppData() any
	GetMetadata(key string) (value any, ok bool)
	SetMetadata(key string, value any)
}

type runContext struct {
	runID    string
	metadata sync.Map
	appData  any
}

func (c *runContext) RunID() string {
	return c.runID
}

func (c *runContext) AppData() any {
	return c.appData
}

func (c *runContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *runContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewRunContext returns a RunContext, generating the ID when empty.
func NewRunContext(runID string, appData any) RunContext {
	return &runContext{
		runID:   values.StringsCoalesce(runID, NewRunID()),
		appData: appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithRunContext returns a new context with RunContext value
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, keyContext, rc)
}

// GetRunContext retrieves the RunContext from the context
func GetRunContext(ctx context.Context) RunContext {
	if v, ok := ctx.Value(keyContext).(RunContext); ok {
		return v
	}
	return nil
}

// GetRunID returns the run ID from ctx, or an empty string.
func GetRunID(ctx context.Context) string {
	if v := GetRunContext(ctx); v != nil {
		return v.RunID()
	}
	return ""
}

// NewRunID generates a new run ID using the flake ID generator.
func NewRunID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
