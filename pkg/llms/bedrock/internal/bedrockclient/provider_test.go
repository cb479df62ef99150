package bedrockclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetProvider(t *testing.T) {
	tests := []struct {
		name     string
		modelID  string
		expected string
	}{
		{
			name:     "Direct Anthropic model ID",
			modelID:  "anthropic.claude-3-sonnet-20240229-v1:0",
			expected: "anthropic",
		},
		{
			name:     "Inference Profile with US region",
			modelID:  "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
			expected: "anthropic",
		},
		{
			name:     "Inference Profile with EU region",
			modelID:  "eu.anthropic.claude-3-haiku-20240307-v1:0",
			expected: "anthropic",
		},
		{
			name:     "Direct Amazon model ID",
			modelID:  "amazon.titan-text-premier-v1:0",
			expected: "amazon",
		},
		{
			name:     "Inference Profile with Amazon",
			modelID:  "us.amazon.nova-micro-v1:0",
			expected: "amazon",
		},
		{
			name:     "Direct Meta model ID",
			modelID:  "meta.llama3-2-1b-instruct-v1:0",
			expected: "meta",
		},
		{
			name:     "Inference Profile with Meta",
			modelID:  "us.meta.llama3-2-11b-instruct-v1:0",
			expected: "meta",
		},
		{
			name:     "Single part model ID",
			modelID:  "anthropic",
			expected: "anthropic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getProvider(tt.modelID)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("anthropic.claude-3-sonnet-20240229-v1:0"))
	assert.True(t, IsSupported("us.anthropic.claude-sonnet-4-20250514-v1:0"))
	assert.False(t, IsSupported("amazon.titan-text-premier-v1:0"))
	assert.False(t, IsSupported("meta.llama3-2-1b-instruct-v1:0"))
}

func TestToToolChoice(t *testing.T) {
	assert.Equal(t, &anthropicToolChoice{Type: "auto"}, toToolChoice(""))
	assert.Equal(t, &anthropicToolChoice{Type: "any"}, toToolChoice("required"))
	assert.Equal(t, &anthropicToolChoice{Type: "tool", Name: "calculate"}, toToolChoice("calculate"))
}

func TestToCompletion(t *testing.T) {
	c := toCompletion(&anthropicOutput{
		Content: []anthropicOutputContent{
			{Type: "text", Text: "done"},
			{Type: "tool_use", ID: "t1", Name: "get_time"},
		},
		StopReason: "tool_use",
		Usage:      anthropicUsage{InputTokens: 1, OutputTokens: 2},
	})
	assert.Equal(t, "done", c.DiscardedText)
	assert.Empty(t, c.Text)
	assert.Len(t, c.ToolCalls, 1)
	assert.Equal(t, int64(3), c.Usage.TotalTokens)
}
