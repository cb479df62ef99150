package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/slices"
)

var TimeNowFn = time.Now

type RunStats struct {
	RunID string

	Duration            time.Duration
	TotalMessages       uint32
	LLMBytesOut         uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	LLMTotalTokens      uint64
	Runs                uint32
	RunsSucceeded       uint32
	RunsFailed          uint32
	LLMCalls            uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Scratchpad collects a transcript and stats per run ID.
// Events of runs that were not started with StartRun are ignored.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts collecting for the run of ctx, adding a RunContext if
// ctx has none. The returned context must be passed to the run.
func (l *Scratchpad) StartRun(ctx context.Context) context.Context {
	rc := chatmodel.GetRunContext(ctx)
	if rc == nil {
		rc = chatmodel.NewRunContext("", nil)
		ctx = chatmodel.WithRunContext(ctx, rc)
	}

	r := &run{
		stats:   RunStats{RunID: rc.RunID()},
		runID:   rc.RunID(),
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[rc.RunID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
	return ctx
}

// EndRun stops collecting for the run of ctx and returns its stats and transcript.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Runs: %d, Failed: %d",
		stats.Runs,
		stats.RunsFailed,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	run.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.runID)
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	runID := chatmodel.GetRunID(ctx)
	if runID == "" {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[runID]
}

func (l *Scratchpad) OnRunStart(ctx context.Context, agent string, prompt string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.Runs, 1)
	run.print(agent, "*** Assistant Start ***")
	run.print(agent, "Input:", prompt)
}

func (l *Scratchpad) OnRunEnd(ctx context.Context, agent string, res *assistants.Result) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.RunsSucceeded, 1)

	if l.mode == ModeVerbose {
		if res.Text != "" {
			run.print(agent, "Output:", res.Text)
		}
		run.print(agent, printMessages(res.Conversation))
	}
	run.print(agent, "*** Assistant End ***", string(res.State))
}

func (l *Scratchpad) OnRunError(ctx context.Context, agent string, res *assistants.Result, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.RunsFailed, 1)
	run.print(agent, "*** Error ***", err.Error())
	if res != nil && res.Conversation != nil {
		run.print(agent, printMessages(res.Conversation))
	}
}

func printMessages(conv *chatmodel.Conversation) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range conv.Messages() {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&buf, "  - call %s %s(%s)\n", call.ID, call.Name, call.Arguments.String())
		}
		for _, r := range msg.Results {
			status := "ok"
			if r.IsError() {
				status = r.Failure.ErrorCode()
			}
			fmt.Fprintf(&buf, "  - result %s %s: %s\n", r.ID, status, slices.StringUpto(r.Text(), 128))
		}
		fmt.Fprintf(&buf, "  - %d chars, %d tool calls, %d tool results\n", len(msg.Text), len(msg.ToolCalls), len(msg.Results))
	}
	return buf.String()
}

func (l *Scratchpad) OnModelCallStart(ctx context.Context, agent string, model llms.Model, conv *chatmodel.Conversation) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	count := uint32(conv.Len())
	atomic.AddUint64(&run.stats.LLMBytesOut, uint64(conv.Size()))
	atomic.AddUint32(&run.stats.LLMCalls, 1)
	atomic.AddUint32(&run.stats.TotalMessages, count)

	run.print(agent, "*** LLM Call ***", fmt.Sprintf("%s model, %d messages", model.GetName(), count))
}

func (l *Scratchpad) OnModelCallEnd(ctx context.Context, agent string, model llms.Model, resp *llms.Completion) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	u := resp.Usage
	atomic.AddUint64(&run.stats.LLMInputTokens, uint64(u.InputTokens))
	atomic.AddUint64(&run.stats.LLMOutputTokens, uint64(u.OutputTokens))
	atomic.AddUint64(&run.stats.LLMTotalTokens, uint64(u.TotalTokens))

	run.print(agent, "*** LLM Call End ***", fmt.Sprintf("%s model, %d tool calls, %d input tokens, %d output tokens, %d total tokens",
		model.GetName(), len(resp.ToolCalls), u.InputTokens, u.OutputTokens, u.TotalTokens))
	if l.mode == ModeVerbose && resp.DiscardedText != "" {
		run.print(agent, "Discarded:", resp.DiscardedText)
	}
}

func (l *Scratchpad) OnToolStart(ctx context.Context, agent string, call chatmodel.ToolCall) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(agent, call.Name, "*** Tool Start ***")
	run.print(agent, call.Name, "Input:", call.Arguments.String())
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(agent, call.Name, "Output:", result.Text())
	}
	run.print(agent, call.Name, "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, agent string, call chatmodel.ToolCall, result chatmodel.ToolResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
	run.print(agent, call.Name, "*** Tool Error ***", result.Text())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, agent string, call chatmodel.ToolCall) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print(agent, "*** Tool Not Found ***", call.Name)
}

type run struct {
	runID   string
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// timestamp runID entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.runID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
