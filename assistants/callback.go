package assistants

import (
	"context"
	"fmt"
	"io"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=callback.go -destination=../mocks/mockassistants/callback_mock.gen.go -package mockassistants

// Callback is notified of the events of a run.
// The tool methods may be called concurrently within one round.
type Callback interface {
	OnRunStart(ctx context.Context, agent string, prompt string)
	OnRunEnd(ctx context.Context, agent string, res *Result)
	OnRunError(ctx context.Context, agent string, res *Result, err error)

	OnModelCallStart(ctx context.Context, agent string, model llms.Model, conv *chatmodel.Conversation)
	OnModelCallEnd(ctx context.Context, agent string, model llms.Model, resp *llms.Completion)

	OnToolStart(ctx context.Context, agent string, call chatmodel.ToolCall)
	OnToolEnd(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult)
	OnToolError(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult)
	OnToolNotFound(ctx context.Context, agent string, call chatmodel.ToolCall)
}

// NoopCallback does nothing.
type NoopCallback struct{}

func NewNoopCallback() *NoopCallback {
	return &NoopCallback{}
}

var _ Callback = (*NoopCallback)(nil)

func (l *NoopCallback) OnRunStart(context.Context, string, string)         {}
func (l *NoopCallback) OnRunEnd(context.Context, string, *Result)          {}
func (l *NoopCallback) OnRunError(context.Context, string, *Result, error) {}
func (l *NoopCallback) OnModelCallStart(context.Context, string, llms.Model, *chatmodel.Conversation) {
}
func (l *NoopCallback) OnModelCallEnd(context.Context, string, llms.Model, *llms.Completion) {}
func (l *NoopCallback) OnToolStart(context.Context, string, chatmodel.ToolCall)              {}
func (l *NoopCallback) OnToolEnd(context.Context, string, chatmodel.ToolCall, chatmodel.ToolResult) {
}
func (l *NoopCallback) OnToolError(context.Context, string, chatmodel.ToolCall, chatmodel.ToolResult) {
}
func (l *NoopCallback) OnToolNotFound(context.Context, string, chatmodel.ToolCall) {}

// PrinterCallback is a callback handler that prints to the Writer.
type PrinterCallback struct {
	Out io.Writer
}

func NewPrinterCallback(out io.Writer) *PrinterCallback {
	return &PrinterCallback{Out: out}
}

var _ Callback = (*PrinterCallback)(nil)

func (l *PrinterCallback) OnRunStart(_ context.Context, agent string, prompt string) {
	fmt.Fprintf(l.Out, "Run Start: %s\n", agent)
	fmt.Fprintf(l.Out, "Input: %s\n", prompt)
}

func (l *PrinterCallback) OnRunEnd(_ context.Context, agent string, res *Result) {
	fmt.Fprintf(l.Out, "Run End: %s: %s after %d turns\n", agent, res.State, res.Turns)
	if res.Text != "" {
		fmt.Fprintln(l.Out, res.Text)
	}
}

func (l *PrinterCallback) OnRunError(_ context.Context, agent string, _ *Result, err error) {
	fmt.Fprintf(l.Out, "Run Error: %s: %s\n", agent, err.Error())
}

func (l *PrinterCallback) OnModelCallStart(_ context.Context, agent string, model llms.Model, conv *chatmodel.Conversation) {
	fmt.Fprintf(l.Out, "Model Call: %s: %s, %d messages\n", agent, model.GetName(), conv.Len())
}

func (l *PrinterCallback) OnModelCallEnd(_ context.Context, agent string, model llms.Model, resp *llms.Completion) {
	fmt.Fprintf(l.Out, "Model Response: %s: %s, %d tool calls\n", agent, model.GetName(), len(resp.ToolCalls))
}

func (l *PrinterCallback) OnToolStart(_ context.Context, _ string, call chatmodel.ToolCall) {
	fmt.Fprintf(l.Out, "Tool Start: %s\n", call.Name)
	fmt.Fprintf(l.Out, "Input: %s\n", call.Arguments.String())
}

func (l *PrinterCallback) OnToolEnd(_ context.Context, _ string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	fmt.Fprintf(l.Out, "Tool End: %s\n", call.Name)
	fmt.Fprintf(l.Out, "Output: %s\n", result.Text())
}

func (l *PrinterCallback) OnToolError(_ context.Context, _ string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", call.Name, result.Text())
}

func (l *PrinterCallback) OnToolNotFound(_ context.Context, _ string, call chatmodel.ToolCall) {
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", call.Name)
}

// PackageLoggerCallback is a callback handler that prints to the logger.
type PackageLoggerCallback struct {
	logger *xlog.PackageLogger
}

func NewPackageLoggerCallback(logger *xlog.PackageLogger) *PackageLoggerCallback {
	return &PackageLoggerCallback{logger: logger}
}

var _ Callback = (*PackageLoggerCallback)(nil)

func (l *PackageLoggerCallback) OnRunStart(ctx context.Context, agent string, prompt string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_start",
		"agent", agent,
		"input", slices.StringUpto(prompt, 256),
	)
}

func (l *PackageLoggerCallback) OnRunEnd(ctx context.Context, agent string, res *Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_end",
		"agent", agent,
		"state", res.State,
		"turns", res.Turns,
		"result", slices.StringUpto(res.Text, 256),
	)
}

func (l *PackageLoggerCallback) OnRunError(ctx context.Context, agent string, res *Result, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "run_error",
		"agent", agent,
		"turns", res.Turns,
		"err", err.Error(),
	)
}

func (l *PackageLoggerCallback) OnModelCallStart(ctx context.Context, agent string, model llms.Model, conv *chatmodel.Conversation) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"agent", agent,
		"model", model.GetName(),
		"messages", conv.Len(),
	)
}

func (l *PackageLoggerCallback) OnModelCallEnd(ctx context.Context, agent string, model llms.Model, resp *llms.Completion) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"agent", agent,
		"model", model.GetName(),
		"tool_calls", len(resp.ToolCalls),
		"stop_reason", resp.StopReason,
	)
}

func (l *PackageLoggerCallback) OnToolStart(ctx context.Context, agent string, call chatmodel.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"agent", agent,
		"tool", call.Name,
		"tool_call_id", call.ID,
		"input", call.Arguments.String(),
	)
}

func (l *PackageLoggerCallback) OnToolEnd(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"agent", agent,
		"tool", call.Name,
		"tool_call_id", call.ID,
		"output", slices.StringUpto(result.Text(), 256),
	)
}

func (l *PackageLoggerCallback) OnToolError(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"agent", agent,
		"tool", call.Name,
		"tool_call_id", call.ID,
		"err", result.Text(),
	)
}

func (l *PackageLoggerCallback) OnToolNotFound(ctx context.Context, agent string, call chatmodel.ToolCall) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"agent", agent,
		"tool", call.Name,
	)
}
