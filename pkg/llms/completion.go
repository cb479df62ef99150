package llms

import (
	"strings"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/google/uuid"
)

// Usage reports the tokens consumed by one model call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.TotalTokens += u2.TotalTokens
}

// Completion is the outcome of one model call.
type Completion struct {
	// Text is the final answer; empty when ToolCalls is set.
	Text string `json:"text,omitempty"`
	// ToolCalls are the tool-call intents, in the order the model emitted them.
	ToolCalls []chatmodel.ToolCall `json:"tool_calls,omitempty"`
	// DiscardedText is text that accompanied tool calls.
	// It is kept for diagnostics and is not part of the conversation.
	DiscardedText string `json:"discarded_text,omitempty"`
	StopReason    string `json:"stop_reason,omitempty"`
	Usage         Usage  `json:"usage"`
}

// NewCompletion classifies a provider response. Text that comes with tool
// calls is moved to DiscardedText. Tool calls without an id get one.
func NewCompletion(text string, calls []chatmodel.ToolCall, stopReason string, usage Usage) *Completion {
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	c := &Completion{
		StopReason: stopReason,
		Usage:      usage,
	}
	if len(calls) == 0 {
		c.Text = text
		return c
	}
	c.DiscardedText = strings.TrimSpace(text)
	c.ToolCalls = EnsureToolCallIDs(calls)
	return c
}

// IsFinal returns true if the completion is an answer with no tool calls.
func (c *Completion) IsFinal() bool {
	return len(c.ToolCalls) == 0
}

// EnsureToolCallIDs assigns an id to calls that have none, and makes
// duplicate ids unique within the round.
func EnsureToolCallIDs(calls []chatmodel.ToolCall) []chatmodel.ToolCall {
	seen := make(map[string]bool, len(calls))
	for i := range calls {
		if calls[i].ID == "" || seen[calls[i].ID] {
			calls[i].ID = NewToolCallID()
		}
		seen[calls[i].ID] = true
	}
	return calls
}

// NewToolCallID returns a new unique tool call id.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
