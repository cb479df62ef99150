// Package callbacks provides composite and stats-collecting run callbacks.
package callbacks

import (
	"context"

	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
)

var (
	_ assistants.Callback = (*Fanout)(nil)
	_ assistants.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

// Add must not be called while a run is active.
func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnRunStart(ctx context.Context, agent string, prompt string) {
	for _, callback := range l.callbacks {
		callback.OnRunStart(ctx, agent, prompt)
	}
}

func (l *Fanout) OnRunEnd(ctx context.Context, agent string, res *assistants.Result) {
	for _, callback := range l.callbacks {
		callback.OnRunEnd(ctx, agent, res)
	}
}

func (l *Fanout) OnRunError(ctx context.Context, agent string, res *assistants.Result, err error) {
	for _, callback := range l.callbacks {
		callback.OnRunError(ctx, agent, res, err)
	}
}

func (l *Fanout) OnModelCallStart(ctx context.Context, agent string, model llms.Model, conv *chatmodel.Conversation) {
	for _, callback := range l.callbacks {
		callback.OnModelCallStart(ctx, agent, model, conv)
	}
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, agent string, model llms.Model, resp *llms.Completion) {
	for _, callback := range l.callbacks {
		callback.OnModelCallEnd(ctx, agent, model, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, agent string, call chatmodel.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, agent, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, agent, call, result)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, agent, call, result)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, agent string, call chatmodel.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, agent, call)
	}
}
