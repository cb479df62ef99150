package assistants

import (
	"context"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "assistants")

// State of a run.
type State string

const (
	StateRunning         State = "running"
	StateAnswered        State = "answered"
	StateBudgetExhausted State = "budget_exhausted"
	StateFailed          State = "failed"
)

// IsTerminal returns true if the run has stopped.
func (s State) IsTerminal() bool {
	return s == StateAnswered || s == StateBudgetExhausted || s == StateFailed
}

// ToolRegistry resolves and executes tool calls.
// Execute must return exactly one result for the call.
type ToolRegistry interface {
	List() []chatmodel.ToolDefinition
	Execute(ctx context.Context, call chatmodel.ToolCall) chatmodel.ToolResult
}

// Result of a run. It is returned for every terminal state,
// including Failed, so the transcript can be inspected.
type Result struct {
	RunID string
	State State
	// Text is the final answer when Answered, or the last assistant
	// text seen when the budget was exhausted.
	Text string
	// Conversation is the full transcript of the run.
	Conversation *chatmodel.Conversation
	// ToolResults is the trail of tool results in append order.
	ToolResults []chatmodel.ToolResult
	// Turns is the number of completed model rounds.
	Turns int
	Usage llms.Usage
	// Err is the fatal error when Failed.
	Err error
}

// Run starts a loop with prompt, the tools of registry and model,
// bounded by maxTurns model rounds.
// The returned Result is not nil unless the configuration is invalid.
func Run(ctx context.Context, prompt string, registry ToolRegistry, model llms.Model, maxTurns int, opts ...Option) (*Result, error) {
	opts = append(opts, WithMaxTurns(maxTurns))
	return NewAssistant(model, registry, opts...).Run(ctx, prompt)
}
