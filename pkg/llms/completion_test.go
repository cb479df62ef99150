package llms_test

import (
	"testing"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompletion(t *testing.T) {
	c := llms.NewCompletion("4", nil, "end_turn", llms.Usage{InputTokens: 3, OutputTokens: 1})
	assert.True(t, c.IsFinal())
	assert.Equal(t, "4", c.Text)
	assert.Empty(t, c.DiscardedText)
	assert.Equal(t, int64(4), c.Usage.TotalTokens)

	calls := []chatmodel.ToolCall{
		{ID: "a", Name: "calculate"},
		{Name: "get_current_time"},
		{ID: "a", Name: "calculate"},
	}
	c = llms.NewCompletion(" Let me compute that. ", calls, "tool_use", llms.Usage{TotalTokens: 9})
	assert.False(t, c.IsFinal())
	assert.Empty(t, c.Text)
	assert.Equal(t, "Let me compute that.", c.DiscardedText)
	assert.Equal(t, int64(9), c.Usage.TotalTokens)
	require.Len(t, c.ToolCalls, 3)
	assert.Equal(t, "a", c.ToolCalls[0].ID)
	assert.NotEmpty(t, c.ToolCalls[1].ID)
	assert.NotEqual(t, "a", c.ToolCalls[2].ID)
	assert.NotEqual(t, c.ToolCalls[1].ID, c.ToolCalls[2].ID)
}

func TestUsage_Add(t *testing.T) {
	u := llms.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	u.Add(llms.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	assert.Equal(t, llms.Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, u)
}
