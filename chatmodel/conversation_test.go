package chatmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendOnly(t *testing.T) {
	t.Parallel()

	c := NewConversation("be brief")
	assert.Equal(t, "be brief", c.Preamble())
	assert.Equal(t, 0, c.Len())
	_, ok := c.Last()
	assert.False(t, ok)

	call := ToolCall{ID: "c1", Name: "add", Arguments: ParseArguments(`{"a":2,"b":2}`)}
	require.NoError(t, c.Append(UserMessage("What is 2+2?")))
	require.NoError(t, c.Append(AssistantMessage("thinking", call)))
	require.NoError(t, c.Append(ToolResultMessage(NewToolResult("c1", "add", NewTextContent("4")))))
	assert.Equal(t, 3, c.Len())

	msgs := c.Messages()
	msgs[0].Text = "changed"
	msgs[1].ToolCalls[0].ID = "changed"
	assert.Equal(t, "What is 2+2?", c.Messages()[0].Text)

	assert.Equal(t, []ToolCall{call}, c.ToolCalls()[:1])
	require.Len(t, c.ToolResults(), 1)
	assert.Equal(t, "c1", c.ToolResults()[0].ID)
	assert.Equal(t, "thinking", c.LastAssistantText())

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, RoleToolResult, last.Role)
	assert.Greater(t, c.Size(), len("be brief"))

	err := c.Append(Message{Role: "system", Text: "x"})
	assert.EqualError(t, err, `invalid message role: "system"`)
	assert.Equal(t, 3, c.Len())
}

func TestToolResult_Text(t *testing.T) {
	t.Parallel()

	ok := NewToolResult("1", "add", NewTextContent("4"), NewTextContent("done"))
	assert.False(t, ok.IsError())
	assert.Equal(t, "4\ndone", ok.Text())

	blob := NewToolResult("2", "img", NewBlobContent([]byte("hi"), "image/png"))
	assert.Equal(t, ContentTypeImage, blob.Content[0].Type)
	assert.Equal(t, "data:image/png;base64,aGk=", blob.Text())

	failed := NewFailureResult("3", "divide", NewToolError("division_by_zero", "cannot divide by zero"))
	require.True(t, failed.IsError())
	assert.Equal(t, FailureToolError, failed.Failure.Kind)
	assert.Equal(t, "division_by_zero", failed.Failure.ErrorCode())
	assert.Equal(t, `{"error":"division_by_zero","message":"cannot divide by zero"}`, failed.Text())

	transport := NewFailure("4", "remote", FailureTransport, "")
	assert.Equal(t, `{"error":"transport_error"}`, transport.Text())

	jc, err := NewJSONContent(map[string]int{"value": 4})
	require.NoError(t, err)
	assert.Equal(t, `{"value":4}`, jc.String())
}

func TestToolDefinition_ParametersMap(t *testing.T) {
	t.Parallel()

	d := ToolDefinition{Name: "noop"}
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, d.ParametersMap())
}
