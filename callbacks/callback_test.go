package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mocks/mockassistants"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestFanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetName().Return("mock-model").AnyTimes()

	var buf1, buf2 bytes.Buffer
	cb := callbacks.NewFanout(assistants.NewPrinterCallback(&buf1))
	cb.Add(assistants.NewPrinterCallback(&buf2))

	ctx := context.Background()
	call := chatmodel.ToolCall{ID: "c1", Name: "calculate", Arguments: chatmodel.ObjectFrom("a", 1)}
	conv := chatmodel.NewConversation("")
	res := &assistants.Result{State: assistants.StateAnswered, Turns: 1, Text: "done", Conversation: conv}

	cb.OnRunStart(ctx, "agent", "prompt")
	cb.OnModelCallStart(ctx, "agent", model, conv)
	cb.OnModelCallEnd(ctx, "agent", model, llms.NewCompletion("", []chatmodel.ToolCall{call}, "", llms.Usage{}))
	cb.OnToolStart(ctx, "agent", call)
	cb.OnToolEnd(ctx, "agent", call, chatmodel.NewToolResult("c1", "calculate", chatmodel.NewTextContent("1")))
	cb.OnToolError(ctx, "agent", call, chatmodel.NewFailure("c1", "calculate", chatmodel.FailureTimeout, "slow"))
	cb.OnToolNotFound(ctx, "agent", chatmodel.ToolCall{Name: "weather"})
	cb.OnRunEnd(ctx, "agent", res)
	cb.OnRunError(ctx, "agent", res, errors.New("boom"))

	for _, buf := range []*bytes.Buffer{&buf1, &buf2} {
		s := buf.String()
		assert.Contains(t, s, "Run Start: agent")
		assert.Contains(t, s, "Model Call: agent: mock-model, 0 messages")
		assert.Contains(t, s, "Model Response: agent: mock-model, 1 tool calls")
		assert.Contains(t, s, "Tool Start: calculate")
		assert.Contains(t, s, "Tool End: calculate")
		assert.Contains(t, s, "Tool Error: calculate")
		assert.Contains(t, s, "Tool Not Found: weather")
		assert.Contains(t, s, "Run End: agent: answered after 1 turns")
		assert.Contains(t, s, "Run Error: agent: boom")
	}
}

func TestFanout_Order(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mockassistants.NewMockCallback(ctrl)
	second := mockassistants.NewMockCallback(ctrl)

	ctx := context.Background()
	call := chatmodel.ToolCall{ID: "c1", Name: "calculate"}
	res := &assistants.Result{State: assistants.StateAnswered}

	gomock.InOrder(
		first.EXPECT().OnRunStart(ctx, "agent", "prompt"),
		second.EXPECT().OnRunStart(ctx, "agent", "prompt"),
		first.EXPECT().OnToolNotFound(ctx, "agent", call),
		second.EXPECT().OnToolNotFound(ctx, "agent", call),
		first.EXPECT().OnRunEnd(ctx, "agent", res),
		second.EXPECT().OnRunEnd(ctx, "agent", res),
	)

	cb := callbacks.NewFanout(first, second)
	cb.OnRunStart(ctx, "agent", "prompt")
	cb.OnToolNotFound(ctx, "agent", call)
	cb.OnRunEnd(ctx, "agent", res)
}
