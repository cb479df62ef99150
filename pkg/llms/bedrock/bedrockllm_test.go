package bedrock_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llms/bedrock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	lock      sync.Mutex
	paths     []string
	requests  []map[string]any
	responses []string
	status    int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := map[string]any{}
	_ = json.Unmarshal(body, &req)

	f.lock.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requests = append(f.requests, req)
	status := f.status
	var resp string
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.Header().Set("X-Amzn-ErrorType", "ValidationException")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"malformed input"}`))
		return
	}
	_, _ = w.Write([]byte(resp))
}

func newClient(t *testing.T, f *fakeServer) *bedrockruntime.Client {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return bedrockruntime.New(bedrockruntime.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		HTTPClient:       srv.Client(),
		RetryMaxAttempts: 1,
	})
}

const toolUseResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"content": [
		{"type": "text", "text": "Let me calculate."},
		{"type": "tool_use", "id": "toolu_1", "name": "calculate", "input": {"operation": "add", "a": 2, "b": 3}}
	],
	"stop_reason": "tool_use",
	"usage": {"input_tokens": 12, "output_tokens": 7}
}`

const textResponse = `{
	"id": "msg_2",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "2 plus 3 is 5."}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 30, "output_tokens": 8}
}`

func TestNew(t *testing.T) {
	client := newClient(t, &fakeServer{})

	llm, err := bedrock.New(context.Background(), bedrock.WithClient(client))
	require.NoError(t, err)
	assert.Equal(t, bedrock.ModelAnthropicClaudeV35Sonnet, llm.GetName())
	assert.Equal(t, llms.ProviderBedrock, llm.GetProviderType())

	_, err = bedrock.New(context.Background(),
		bedrock.WithClient(client),
		bedrock.WithModel("meta.llama3-2-1b-instruct-v1:0"),
	)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
}

func TestComplete_ToolUse(t *testing.T) {
	f := &fakeServer{responses: []string{toolUseResponse}}
	llm, err := bedrock.New(context.Background(),
		bedrock.WithClient(newClient(t, f)),
		bedrock.WithModel(bedrock.ModelAnthropicClaudeV4Sonnet),
	)
	require.NoError(t, err)

	conv := chatmodel.NewConversation("You are a calculator.")
	require.NoError(t, conv.Append(chatmodel.UserMessage("What is 2+3?")))

	resp, err := llm.Complete(context.Background(), conv, []chatmodel.ToolDefinition{
		{Name: "calculate", Description: "Performs arithmetic"},
	}, llms.WithMaxTokens(512))
	require.NoError(t, err)
	assert.False(t, resp.IsFinal())
	assert.Equal(t, "Let me calculate.", resp.DiscardedText)
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, llms.Usage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	b, _ := resp.ToolCalls[0].Arguments.Get("b")
	n, _ := b.AsFloat()
	assert.Equal(t, 3.0, n)

	require.Len(t, f.paths, 1)
	assert.True(t, strings.HasSuffix(f.paths[0], "/invoke"), f.paths[0])
	req := f.requests[0]
	assert.Equal(t, "bedrock-2023-05-31", req["anthropic_version"])
	assert.Equal(t, 512.0, req["max_tokens"])
	assert.Equal(t, "You are a calculator.", req["system"])
	assert.Equal(t, map[string]any{"type": "auto"}, req["tool_choice"])
	tools := req["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, tools[0].(map[string]any)["input_schema"])
}

func TestComplete_History(t *testing.T) {
	f := &fakeServer{responses: []string{textResponse}}
	llm, err := bedrock.New(context.Background(), bedrock.WithClient(newClient(t, f)))
	require.NoError(t, err)

	conv := chatmodel.NewConversation("")
	require.NoError(t, conv.Append(
		chatmodel.UserMessage("What is 2+3?"),
		chatmodel.AssistantMessage("",
			chatmodel.ToolCall{ID: "toolu_1", Name: "calculate", Arguments: chatmodel.ObjectFrom("a", 2, "b", 3)},
			chatmodel.ToolCall{ID: "toolu_2", Name: "flaky"},
		),
		chatmodel.ToolResultMessage(chatmodel.NewToolResult("toolu_1", "calculate", chatmodel.NewTextContent("5"))),
		chatmodel.ToolResultMessage(chatmodel.NewFailure("toolu_2", "flaky", chatmodel.FailureTimeout, "timed out")),
	))

	resp, err := llm.Complete(context.Background(), conv, nil)
	require.NoError(t, err)
	assert.True(t, resp.IsFinal())
	assert.Equal(t, "2 plus 3 is 5.", resp.Text)

	req := f.requests[0]
	assert.Nil(t, req["system"])
	assert.Nil(t, req["tools"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 3)

	asst := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, asst, 2)
	assert.Equal(t, map[string]any{"a": 2.0, "b": 3.0}, asst[0].(map[string]any)["input"])
	assert.Equal(t, map[string]any{}, asst[1].(map[string]any)["input"])

	results := msgs[2].(map[string]any)
	assert.Equal(t, "user", results["role"])
	blocks := results["content"].([]any)
	require.Len(t, blocks, 2)
	first := blocks[0].(map[string]any)
	assert.Equal(t, "tool_result", first["type"])
	assert.Equal(t, "5", first["content"])
	assert.Nil(t, first["is_error"])
	second := blocks[1].(map[string]any)
	assert.Equal(t, "toolu_2", second["tool_use_id"])
	assert.Equal(t, true, second["is_error"])
}

func TestComplete_Error(t *testing.T) {
	f := &fakeServer{status: http.StatusBadRequest}
	llm, err := bedrock.New(context.Background(), bedrock.WithClient(newClient(t, f)))
	require.NoError(t, err)

	conv := chatmodel.NewConversation("")
	require.NoError(t, conv.Append(chatmodel.UserMessage("hi")))
	_, err = llm.Complete(context.Background(), conv, nil)
	require.Error(t, err)
	assert.True(t, chatmodel.IsModelError(err))
}
