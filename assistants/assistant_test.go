package assistants_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type step func(ctx context.Context, conv *chatmodel.Conversation) (*llms.Completion, error)

// scripted returns a model that plays steps in order, one per model call.
func scripted(t *testing.T, steps ...step) *mockllms.MockModel {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()

	var lock sync.Mutex
	next := 0
	m.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, conv *chatmodel.Conversation, _ []chatmodel.ToolDefinition, _ ...llms.CallOption) (*llms.Completion, error) {
			lock.Lock()
			s := steps[next]
			next++
			lock.Unlock()
			return s(ctx, conv)
		}).
		Times(len(steps))
	return m
}

func answer(text string) step {
	return func(context.Context, *chatmodel.Conversation) (*llms.Completion, error) {
		return llms.NewCompletion(text, nil, "stop", llms.Usage{InputTokens: 10, OutputTokens: 5}), nil
	}
}

func callTools(text string, calls ...chatmodel.ToolCall) step {
	return func(context.Context, *chatmodel.Conversation) (*llms.Completion, error) {
		return llms.NewCompletion(text, calls, "tool_calls", llms.Usage{InputTokens: 10, OutputTokens: 5}), nil
	}
}

func calc(id, op string, a, b float64) chatmodel.ToolCall {
	return chatmodel.ToolCall{
		ID:        id,
		Name:      calculator.ToolName,
		Arguments: chatmodel.ObjectFrom("operation", op, "a", a, "b", b),
	}
}

func newRegistry(t *testing.T, list ...tools.ITool) *tools.Registry {
	r, err := tools.NewRegistryWithTools(list...)
	require.NoError(t, err)
	return r
}

type echoInput struct {
	Text string `json:"text"`
}

func echoTool(name string, run func(ctx context.Context, in *echoInput) (*string, error)) tools.ITool {
	return tools.MustFunc(name, "Echoes the text", run)
}

type recorder struct {
	assistants.NoopCallback

	lock     sync.Mutex
	events   []string
	notFound []string
}

func (r *recorder) add(ev string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnRunStart(context.Context, string, string) { r.add("run_start") }
func (r *recorder) OnRunEnd(context.Context, string, *assistants.Result) {
	r.add("run_end")
}
func (r *recorder) OnRunError(context.Context, string, *assistants.Result, error) {
	r.add("run_error")
}
func (r *recorder) OnModelCallStart(context.Context, string, llms.Model, *chatmodel.Conversation) {
	r.add("model_start")
}
func (r *recorder) OnModelCallEnd(context.Context, string, llms.Model, *llms.Completion) {
	r.add("model_end")
}
func (r *recorder) OnToolStart(_ context.Context, _ string, call chatmodel.ToolCall) {
	r.add("tool_start:" + call.Name)
}
func (r *recorder) OnToolEnd(_ context.Context, _ string, call chatmodel.ToolCall, _ chatmodel.ToolResult) {
	r.add("tool_end:" + call.Name)
}
func (r *recorder) OnToolError(_ context.Context, _ string, call chatmodel.ToolCall, _ chatmodel.ToolResult) {
	r.add("tool_error:" + call.Name)
}
func (r *recorder) OnToolNotFound(_ context.Context, _ string, call chatmodel.ToolCall) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.notFound = append(r.notFound, call.Name)
}

func TestRun_InvalidConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	reg := newRegistry(t, calculator.New())

	res, err := assistants.Run(context.Background(), "hi", reg, model, 0)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = assistants.Run(context.Background(), "hi", reg, nil, 3)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = assistants.Run(context.Background(), "hi", nil, model, 3)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = assistants.Run(context.Background(), "hi", reg, model, 3, assistants.WithToolTimeout(-time.Second))
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
}

func TestRun_NoFunctionCalling(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetProviderType().Return(llms.ProviderType("TEXT_ONLY")).AnyTimes()
	model.EXPECT().GetName().Return("text-only").AnyTimes()

	res, err := assistants.Run(context.Background(), "hi", newRegistry(t, calculator.New()), model, 3)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
	require.NotNil(t, res)
	assert.Equal(t, assistants.StateFailed, res.State)
	assert.Equal(t, 0, res.Turns)
}

func TestRun_Calculator(t *testing.T) {
	model := scripted(t,
		callTools("", calc("call_1", "add", 2, 2)),
		func(_ context.Context, conv *chatmodel.Conversation) (*llms.Completion, error) {
			last, ok := conv.Last()
			require.True(t, ok)
			require.Equal(t, chatmodel.RoleToolResult, last.Role)
			assert.Equal(t, "4", last.Results[0].Text())
			return llms.NewCompletion("The answer is 4.", nil, "stop", llms.Usage{InputTokens: 20, OutputTokens: 6}), nil
		},
	)
	cb := &recorder{}

	res, err := assistants.Run(context.Background(), "What is 2+2?", newRegistry(t, calculator.New()), model, 5,
		assistants.WithPreamble("You are a calculator."),
		assistants.WithCallback(cb),
	)
	require.NoError(t, err)
	assert.Equal(t, assistants.StateAnswered, res.State)
	assert.True(t, res.State.IsTerminal())
	assert.Equal(t, "The answer is 4.", res.Text)
	assert.Equal(t, 2, res.Turns)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, llms.Usage{InputTokens: 30, OutputTokens: 11, TotalTokens: 41}, res.Usage)

	conv := res.Conversation
	assert.Equal(t, "You are a calculator.", conv.Preamble())
	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, chatmodel.RoleUser, msgs[0].Role)
	assert.Equal(t, chatmodel.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "call_1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, chatmodel.RoleToolResult, msgs[2].Role)
	assert.Equal(t, chatmodel.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "The answer is 4.", msgs[3].Text)

	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "call_1", res.ToolResults[0].ID)
	assert.False(t, res.ToolResults[0].IsError())

	assert.Equal(t, []string{
		"run_start",
		"model_start", "model_end",
		"tool_start:calculate", "tool_end:calculate",
		"model_start", "model_end",
		"run_end",
	}, cb.events)
}

func TestRun_BudgetExhausted(t *testing.T) {
	model := scripted(t, callTools("let me compute", calc("", "multiply", 3, 4)))

	res, err := assistants.Run(context.Background(), "What is 3*4?", newRegistry(t, calculator.New()), model, 1)
	require.NoError(t, err)
	assert.Equal(t, assistants.StateBudgetExhausted, res.State)
	assert.Equal(t, "let me compute", res.Text)
	assert.Equal(t, 1, res.Turns)

	require.Len(t, res.ToolResults, 1)
	assert.NotEmpty(t, res.ToolResults[0].ID)
	assert.Equal(t, "12", res.ToolResults[0].Text())

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 3)
	assert.Empty(t, msgs[1].Text)
	assert.Equal(t, res.ToolResults[0].ID, msgs[1].ToolCalls[0].ID)
}

func TestRun_ToolFailureIsFedBack(t *testing.T) {
	model := scripted(t,
		callTools("", calc("c1", "divide", 1, 0)),
		func(_ context.Context, conv *chatmodel.Conversation) (*llms.Completion, error) {
			last, _ := conv.Last()
			r := last.Results[0]
			require.True(t, r.IsError())
			assert.Equal(t, chatmodel.FailureToolError, r.Failure.Kind)
			assert.Equal(t, "division_by_zero", r.Failure.Code)
			return llms.NewCompletion("", []chatmodel.ToolCall{calc("c2", "multiply", 1, 0)}, "tool_calls", llms.Usage{}), nil
		},
		answer("Dividing by zero is undefined."),
	)

	res, err := assistants.Run(context.Background(), "What is 1/0?", newRegistry(t, calculator.New()), model, 5)
	require.NoError(t, err)
	assert.Equal(t, assistants.StateAnswered, res.State)
	assert.Equal(t, 3, res.Turns)
	require.Len(t, res.ToolResults, 2)
	assert.True(t, res.ToolResults[0].IsError())
	assert.Equal(t, "0", res.ToolResults[1].Text())
}

func TestRun_ToolNotFound(t *testing.T) {
	model := scripted(t,
		callTools("", chatmodel.ToolCall{ID: "c1", Name: "weather"}),
		answer("I cannot check the weather."),
	)
	cb := &recorder{}

	res, err := assistants.Run(context.Background(), "Weather?", newRegistry(t, calculator.New()), model, 3, assistants.WithCallback(cb))
	require.NoError(t, err)
	assert.Equal(t, assistants.StateAnswered, res.State)
	require.Len(t, res.ToolResults, 1)
	r := res.ToolResults[0]
	assert.Equal(t, "c1", r.ID)
	require.True(t, r.IsError())
	assert.Equal(t, chatmodel.FailureToolNotFound, r.Failure.Kind)
	assert.Contains(t, r.Failure.Message, "calculate")
	assert.Equal(t, []string{"weather"}, cb.notFound)
}

func TestRun_ResultsInCallOrder(t *testing.T) {
	slow := echoTool("slow", func(_ context.Context, in *echoInput) (*string, error) {
		time.Sleep(50 * time.Millisecond)
		return &in.Text, nil
	})
	fast := echoTool("fast", func(_ context.Context, in *echoInput) (*string, error) {
		return &in.Text, nil
	})

	model := scripted(t,
		callTools("",
			chatmodel.ToolCall{ID: "x", Name: "slow", Arguments: chatmodel.ObjectFrom("text", "X")},
			chatmodel.ToolCall{ID: "y", Name: "fast", Arguments: chatmodel.ObjectFrom("text", "Y")},
		),
		answer("done"),
	)

	res, err := assistants.Run(context.Background(), "go", newRegistry(t, slow, fast), model, 3)
	require.NoError(t, err)
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "x", res.ToolResults[0].ID)
	assert.Equal(t, "X", res.ToolResults[0].Text())
	assert.Equal(t, "y", res.ToolResults[1].ID)
	assert.Equal(t, "Y", res.ToolResults[1].Text())

	msgs := res.Conversation.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "x", msgs[2].Results[0].ID)
	assert.Equal(t, "y", msgs[3].Results[0].ID)
}

func TestRun_Sequential(t *testing.T) {
	var inflight, peak int32
	run := func(_ context.Context, in *echoInput) (*string, error) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return &in.Text, nil
	}

	model := scripted(t,
		callTools("",
			chatmodel.ToolCall{ID: "a", Name: "echo", Arguments: chatmodel.ObjectFrom("text", "1")},
			chatmodel.ToolCall{ID: "b", Name: "echo", Arguments: chatmodel.ObjectFrom("text", "2")},
			chatmodel.ToolCall{ID: "c", Name: "echo", Arguments: chatmodel.ObjectFrom("text", "3")},
		),
		answer("done"),
	)

	res, err := assistants.Run(context.Background(), "go", newRegistry(t, echoTool("echo", run)), model, 3,
		assistants.WithSequentialDispatch(true))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	require.Len(t, res.ToolResults, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, res.ToolResults[i].ID)
	}
}

func TestRun_ToolTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := echoTool("stuck", func(_ context.Context, in *echoInput) (*string, error) {
		<-release
		return &in.Text, nil
	})

	model := scripted(t,
		callTools("", chatmodel.ToolCall{ID: "s1", Name: "stuck"}, calc("c1", "add", 1, 1)),
		answer("partial"),
	)

	started := time.Now()
	res, err := assistants.Run(context.Background(), "go", newRegistry(t, stuck, calculator.New()), model, 3,
		assistants.WithToolTimeout(50*time.Millisecond))
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	require.Len(t, res.ToolResults, 2)

	timedOut := res.ToolResults[0]
	assert.Equal(t, "s1", timedOut.ID)
	require.True(t, timedOut.IsError())
	assert.Equal(t, chatmodel.FailureTimeout, timedOut.Failure.Kind)
	assert.Equal(t, "2", res.ToolResults[1].Text())
}

func TestRun_ModelTimeout(t *testing.T) {
	model := scripted(t, func(ctx context.Context, _ *chatmodel.Conversation) (*llms.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cb := &recorder{}

	res, err := assistants.Run(context.Background(), "hi", newRegistry(t), model, 3,
		assistants.WithModelTimeout(20*time.Millisecond),
		assistants.WithCallback(cb),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrTimeout))
	assert.True(t, chatmodel.IsModelError(err))
	require.NotNil(t, res)
	assert.Equal(t, assistants.StateFailed, res.State)
	assert.Equal(t, err, res.Err)
	assert.Equal(t, []string{"run_start", "model_start", "run_error"}, cb.events)
}

func TestRun_ModelError(t *testing.T) {
	model := scripted(t, func(context.Context, *chatmodel.Conversation) (*llms.Completion, error) {
		return nil, errors.New("rate limited")
	})

	res, err := assistants.Run(context.Background(), "hi", newRegistry(t), model, 3)
	require.Error(t, err)
	assert.True(t, chatmodel.IsModelError(err))
	assert.Equal(t, assistants.StateFailed, res.State)
	assert.Len(t, res.Conversation.Messages(), 1)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	canceller := echoTool("cancel", func(ctx context.Context, _ *echoInput) (*string, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	waiter := echoTool("wait", func(ctx context.Context, _ *echoInput) (*string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	model := scripted(t,
		callTools("", chatmodel.ToolCall{ID: "a", Name: "cancel"}, chatmodel.ToolCall{ID: "b", Name: "wait"}),
	)

	res, err := assistants.Run(ctx, "go", newRegistry(t, canceller, waiter), model, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, assistants.StateFailed, res.State)

	require.Len(t, res.ToolResults, 2)
	for i, id := range []string{"a", "b"} {
		r := res.ToolResults[i]
		assert.Equal(t, id, r.ID)
		require.True(t, r.IsError())
		assert.Equal(t, chatmodel.FailureCancelled, r.Failure.Kind)
	}
	assert.Len(t, res.Conversation.ToolCalls(), 2)
}

func TestRun_CancelledSequential(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	canceller := echoTool("cancel", func(ctx context.Context, _ *echoInput) (*string, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return nil, ctx.Err()
	})

	model := scripted(t,
		callTools("", chatmodel.ToolCall{ID: "a", Name: "cancel"}, chatmodel.ToolCall{ID: "b", Name: "cancel"}),
	)

	res, err := assistants.Run(ctx, "go", newRegistry(t, canceller), model, 3, assistants.WithSequentialDispatch(true))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, chatmodel.FailureCancelled, res.ToolResults[0].Failure.Kind)
	assert.Equal(t, chatmodel.FailureCancelled, res.ToolResults[1].Failure.Kind)
	assert.Equal(t, "b", res.ToolResults[1].ID)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := assistants.Run(ctx, "hi", newRegistry(t), model, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, assistants.StateFailed, res.State)
	assert.Equal(t, 0, res.Turns)
}

func TestAssistant_Continue(t *testing.T) {
	model := scripted(t, answer("Hello."), answer("Hello again."))
	a := assistants.NewAssistant(model, newRegistry(t), assistants.WithName("greeter"), assistants.WithDescription("Greets"))
	assert.Equal(t, "greeter", a.Name())
	assert.Equal(t, "Greets", a.Description())
	assert.Equal(t, model, a.Model())
	assert.NotNil(t, a.Registry())

	ctx := chatmodel.WithRunContext(context.Background(), chatmodel.NewRunContext("run-1", nil))
	res, err := a.Run(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	res, err = a.Continue(ctx, res.Conversation, "hi again")
	require.NoError(t, err)
	assert.Equal(t, "Hello again.", res.Text)

	var transcript []string
	for _, m := range res.Conversation.Messages() {
		transcript = append(transcript, string(m.Role)+": "+m.Text)
	}
	want := []string{
		"user: hi",
		"assistant: Hello.",
		"user: hi again",
		"assistant: Hello again.",
	}
	if diff := cmp.Diff(want, transcript); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}

	_, err = a.Continue(ctx, nil, "hi")
	assert.True(t, chatmodel.IsConfigurationError(err))
}

func TestAssistantTool(t *testing.T) {
	model := scripted(t,
		func(_ context.Context, conv *chatmodel.Conversation) (*llms.Completion, error) {
			msgs := conv.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, "convert 1 km", msgs[0].Text)
			return llms.NewCompletion("1000 m", nil, "stop", llms.Usage{}), nil
		},
		func(context.Context, *chatmodel.Conversation) (*llms.Completion, error) {
			return nil, errors.New("overloaded")
		},
	)
	inner := assistants.NewAssistant(model, newRegistry(t), assistants.WithName("units"), assistants.WithDescription("Converts units"))

	tool, err := assistants.NewAssistantTool(inner)
	require.NoError(t, err)
	assert.Equal(t, "units", tool.Name())
	assert.Equal(t, "Converts units", tool.Description())
	require.NotNil(t, tool.Parameters())

	content, err := tool.Call(context.Background(), chatmodel.ObjectFrom("input", "convert 1 km"))
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, "1000 m", content[0].String())

	_, err = tool.Call(context.Background(), chatmodel.ObjectFrom("input", "again"))
	require.Error(t, err)
	assert.Equal(t, chatmodel.FailureToolError, chatmodel.Classify(err))
}

func TestPrinterCallback(t *testing.T) {
	model := scripted(t, callTools("", calc("c1", "add", 1, 2)), answer("3"))
	var out bytes.Buffer

	_, err := assistants.Run(context.Background(), "1+2", newRegistry(t, calculator.New()), model, 3,
		assistants.WithCallback(assistants.NewPrinterCallback(&out)))
	require.NoError(t, err)
	s := out.String()
	assert.Contains(t, s, "Run Start: assistant")
	assert.Contains(t, s, "Tool Start: calculate")
	assert.Contains(t, s, "Output: 3")
	assert.Contains(t, s, "Run End: assistant: answered after 2 turns")
}
