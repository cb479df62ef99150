package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp"
	"github.com/effective-security/toolagent/mcp/transport/httptransport"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("TOOLAGENT_LLM_CONFIG", "")

	var stderr bytes.Buffer
	f, err := parseFlags([]string{"--config", "agent.yaml", "--llm", "llm.yaml", "what", "is", "2+2?"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "agent.yaml", f.Config)
	assert.Equal(t, "what is 2+2?", f.Prompt)
	assert.False(t, f.Verbose)

	_, err = parseFlags([]string{"--llm", "llm.yaml"}, &stderr)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = parseFlags([]string{"--config", "agent.yaml"}, &stderr)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	t.Setenv("TOOLAGENT_LLM_CONFIG", "llm.yaml")
	f, err = parseFlags([]string{"--config", "agent.yaml", "--prompt", "hi", "--verbose"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "llm.yaml", f.LLM)
	assert.Equal(t, "hi", f.Prompt)
	assert.True(t, f.Verbose)
}

func TestLoadAgentConfig(t *testing.T) {
	cfg, err := loadAgentConfig("testdata/agent.yaml")
	require.NoError(t, err)
	assert.Equal(t, "calculator", cfg.Name)
	assert.Equal(t, 4, cfg.MaxTurns)
	assert.Equal(t, 5*time.Second, cfg.toolTimeout)
	assert.Equal(t, time.Minute, cfg.modelTimeout)
	assert.True(t, cfg.Sequential)
	assert.Equal(t, []string{filepath.Join("testdata", "skills", "math.yaml")}, cfg.skillPaths())
	assert.Equal(t, "ada", cfg.Vars["User"])
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, mcp.TransportStdio, cfg.Servers[0].Type)
	assert.Equal(t, []string{"--transport", "stdio"}, cfg.Servers[0].Args)
	assert.Len(t, cfg.options(), 6)

	cfg, err = loadAgentConfig("testdata/agent.toml")
	require.NoError(t, err)
	assert.Equal(t, "clock", cfg.Name)
	assert.Equal(t, 10, cfg.MaxTurns)
	assert.Equal(t, 2*time.Second, cfg.toolTimeout)
	assert.Zero(t, cfg.modelTimeout)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, mcp.TransportHTTP, cfg.Servers[0].Type)
	assert.Equal(t, "Bearer test", cfg.Servers[0].Headers["Authorization"])
	assert.Len(t, cfg.options(), 5)

	for _, file := range []string{
		"testdata/missing.yaml",
		"testdata/bad_timeout.yaml",
		"testdata/bad_server.yaml",
	} {
		t.Run(file, func(t *testing.T) {
			_, err := loadAgentConfig(file)
			require.Error(t, err)
			assert.True(t, chatmodel.IsConfigurationError(err), err.Error())
		})
	}
}

// startServer serves the calculator and clock over http.
func startServer(t *testing.T) string {
	reg, err := tools.NewRegistryWithTools(calculator.New(), clock.New(nil))
	require.NoError(t, err)

	st := httptransport.NewHTTPTransport("/mcp").WithAddr("")
	srv := mcp.NewServer(st, reg)
	require.NoError(t, srv.Serve())
	t.Cleanup(func() { _ = srv.Close() })

	hs := httptest.NewServer(st)
	t.Cleanup(hs.Close)
	return hs.URL + "/mcp"
}

func writeAgent(t *testing.T, url string, withSkill bool) string {
	skill, err := filepath.Abs("testdata/skills/math.yaml")
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("name: calculator\npreamble: You are a careful calculator.\nmax_turns: 3\n")
	if withSkill {
		fmt.Fprintf(&b, "skills:\n  - %s\nvars:\n  User: ada\n", skill)
	}
	fmt.Fprintf(&b, "servers:\n  - name: demo\n    type: http\n    url: %s\n", url)

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

type modelStep func(conv *chatmodel.Conversation, defs []chatmodel.ToolDefinition) *llms.Completion

// fakeModels makes the factory return a model playing steps, and records
// the model name it was created for.
func fakeModels(t *testing.T, steps ...modelStep) *string {
	ctrl := gomock.NewController(t)
	var created string

	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		created = cfg.FindModel(preferredModels...)
		m := mockllms.NewMockModel(ctrl)
		m.EXPECT().GetName().Return(created).AnyTimes()
		m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()

		next := 0
		m.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, conv *chatmodel.Conversation, defs []chatmodel.ToolDefinition, _ ...llms.CallOption) (*llms.Completion, error) {
				s := steps[next]
				next++
				return s(conv, defs), nil
			}).
			Times(len(steps))
		return m, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
	return &created
}

func defNames(defs []chatmodel.ToolDefinition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func TestRun_WithSkill(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	created := fakeModels(t,
		func(conv *chatmodel.Conversation, defs []chatmodel.ToolDefinition) *llms.Completion {
			assert.Equal(t, []string{"calculate"}, defNames(defs))
			assert.Contains(t, conv.Preamble(), "You are a careful calculator.")
			assert.Contains(t, conv.Preamble(), "Use the calculate tool")
			assert.Contains(t, conv.Preamble(), "Explain the steps to Ada.")
			return llms.NewCompletion("", []chatmodel.ToolCall{{
				ID:        "c1",
				Name:      "calculate",
				Arguments: chatmodel.ObjectFrom("operation", "add", "a", 2, "b", 2),
			}}, "tool_calls", llms.Usage{})
		},
		func(conv *chatmodel.Conversation, _ []chatmodel.ToolDefinition) *llms.Completion {
			results := conv.ToolResults()
			require.Len(t, results, 1)
			assert.Equal(t, "4", results[0].Text())
			return llms.NewCompletion("2 + 2 = 4", nil, "stop", llms.Usage{})
		},
	)

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{
		"--config", writeAgent(t, url, true),
		"--llm", "testdata/llm.yaml",
		"--prompt", "What is 2+2?",
	}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "gpt-test-mini", *created)
	assert.Equal(t, "State: answered\n2 + 2 = 4\n", stdout.String())
}

func TestRun_AllServerTools(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	fakeModels(t,
		func(_ *chatmodel.Conversation, defs []chatmodel.ToolDefinition) *llms.Completion {
			assert.Equal(t, []string{"calculate", "get_current_time"}, defNames(defs))
			return llms.NewCompletion("", []chatmodel.ToolCall{{ID: "c1", Name: "get_weather", Arguments: chatmodel.ObjectFrom()}}, "tool_calls", llms.Usage{})
		},
		func(conv *chatmodel.Conversation, _ []chatmodel.ToolDefinition) *llms.Completion {
			results := conv.ToolResults()
			require.Len(t, results, 1)
			assert.True(t, results[0].IsError())
			return llms.NewCompletion("", []chatmodel.ToolCall{{ID: "c2", Name: "get_current_time", Arguments: chatmodel.ObjectFrom()}}, "tool_calls", llms.Usage{})
		},
		func(*chatmodel.Conversation, []chatmodel.ToolDefinition) *llms.Completion {
			return llms.NewCompletion("still checking", []chatmodel.ToolCall{{ID: "c3", Name: "get_current_time", Arguments: chatmodel.ObjectFrom()}}, "tool_calls", llms.Usage{})
		},
	)

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{
		"--config", writeAgent(t, url, false),
		"--llm", "testdata/llm.yaml",
		"--verbose",
	}, strings.NewReader("What time is it?\n"), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "State: budget_exhausted\nstill checking\n", stdout.String())
	assert.Contains(t, stderr.String(), "Run Start: calculator")
	assert.Contains(t, stderr.String(), "Input: What time is it?")
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	var stdout, stderr bytes.Buffer

	err := run(ctx, []string{"--config", "testdata/agent.yaml", "--llm", "testdata/llm.yaml"}, strings.NewReader("  \n"), &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	err = run(ctx, []string{"--config", "testdata/missing.yaml", "--llm", "testdata/llm.yaml", "--prompt", "hi"}, nil, &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	fakeModels(t)
	// nothing listens on the server port
	path := writeAgent(t, "http://127.0.0.1:1/mcp", false)
	err = run(ctx, []string{"--config", path, "--llm", "testdata/llm.yaml", "--prompt", "hi"}, nil, &stdout, &stderr)
	require.Error(t, err)
	var ce *mcp.ConnectError
	assert.ErrorAs(t, err, &ce)
	assert.Empty(t, stdout.String())
}

func TestPrintResult(t *testing.T) {
	res := &assistants.Result{
		RunID: "run-1",
		State: assistants.StateAnswered,
		Turns: 2,
		Usage: llms.Usage{InputTokens: 30, OutputTokens: 11, TotalTokens: 41},
		Text:  "4",
		ToolResults: []chatmodel.ToolResult{
			chatmodel.NewToolResult("c1", "calculate", chatmodel.NewTextContent("4")),
			chatmodel.NewFailure("c2", "flaky", chatmodel.FailureTimeout, "slow"),
		},
	}

	var buf bytes.Buffer
	printResult(&buf, formatText, res)
	assert.Equal(t, "State: answered\n4\n", buf.String())

	buf.Reset()
	printResult(&buf, formatYAML, res)
	assert.Equal(t, "run_id: run-1\nstate: answered\nturns: 2\ninput_tokens: 30\noutput_tokens: 11\ntool_calls: 2\ntool_errors: 1\ntext: \"4\"\n", buf.String())

	buf.Reset()
	printResult(&buf, formatJSON, &assistants.Result{RunID: "run-2", State: assistants.StateFailed, Err: errors.New("boom")})
	assert.Contains(t, buf.String(), `"state": "failed"`)
	assert.Contains(t, buf.String(), `"error": "boom"`)
	assert.NotContains(t, buf.String(), `"text"`)

	var stderr bytes.Buffer
	_, err := parseFlags([]string{"--config", "a.yaml", "--llm", "l.yaml", "--format", "xml"}, &stderr)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
}
