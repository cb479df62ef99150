package bedrockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

type anthropicInputContent struct {
	// One of: "text", "tool_use", "tool_result"
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicInputMessage struct {
	// One of: "user", "assistant"
	Role    string                  `json:"role"`
	Content []anthropicInputContent `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	// One of: "auto", "any", "tool"
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicInput struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []*anthropicInputMessage `json:"messages"`
	Temperature      float64                  `json:"temperature,omitempty"`
	TopP             float64                  `json:"top_p,omitempty"`
	TopK             int                      `json:"top_k,omitempty"`
	StopSequences    []string                 `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool          `json:"tools,omitempty"`
	ToolChoice       *anthropicToolChoice     `json:"tool_choice,omitempty"`
}

type anthropicOutputContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicOutput struct {
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []anthropicOutputContent `json:"content"`
	StopReason string                   `json:"stop_reason"`
	Usage      anthropicUsage           `json:"usage"`
}

// The latest version of the model.
const (
	AnthropicLatestVersion = "bedrock-2023-05-31"
)

// Role attribute for the anthropic message.
const (
	AnthropicRoleUser      = "user"
	AnthropicRoleAssistant = "assistant"
)

// Type attribute for the anthropic message.
const (
	AnthropicMessageTypeText       = "text"
	AnthropicMessageTypeToolUse    = "tool_use"
	AnthropicMessageTypeToolResult = "tool_result"
)

const anthropicDefaultMaxTokens = 4096

func createAnthropicCompletion(ctx context.Context,
	client *bedrockruntime.Client,
	modelID string,
	conv *chatmodel.Conversation,
	tools []chatmodel.ToolDefinition,
	options llms.CallOptions,
) (*llms.Completion, error) {
	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        getMaxTokens(options.MaxTokens, anthropicDefaultMaxTokens),
		System:           conv.Preamble(),
		Messages:         processInputMessagesAnthropic(conv.Messages()),
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		TopK:             options.TopK,
		StopSequences:    options.StopWords,
	}
	if len(tools) > 0 && options.ToolChoice != llms.ToolChoiceNone {
		input.Tools = make([]anthropicTool, 0, len(tools))
		for _, tool := range tools {
			input.Tools = append(input.Tools, anthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.ParametersMap(),
			})
		}
		input.ToolChoice = toToolChoice(options.ToolChoice)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", modelID,
		"messages", len(input.Messages),
		"tools", len(input.Tools),
	)

	if options.StreamingFunc != nil {
		modelInput := &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(modelID),
			Accept:      aws.String("*/*"),
			ContentType: aws.String("application/json"),
			Body:        body,
		}
		return parseStreamingCompletionResponse(ctx, client, modelInput, options)
	}

	resp, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "failed to decode model output")
	}
	if len(output.Content) == 0 {
		return nil, errors.New("no results")
	}
	return toCompletion(&output), nil
}

func toToolChoice(choice string) *anthropicToolChoice {
	switch choice {
	case "", llms.ToolChoiceAuto:
		return &anthropicToolChoice{Type: "auto"}
	case llms.ToolChoiceRequired:
		return &anthropicToolChoice{Type: "any"}
	default:
		return &anthropicToolChoice{Type: "tool", Name: choice}
	}
}

func toCompletion(output *anthropicOutput) *llms.Completion {
	var text strings.Builder
	var calls []chatmodel.ToolCall
	for _, c := range output.Content {
		switch c.Type {
		case AnthropicMessageTypeText:
			text.WriteString(c.Text)
		case AnthropicMessageTypeToolUse:
			calls = append(calls, chatmodel.ToolCall{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: chatmodel.ParseArguments(string(c.Input)),
			})
		}
	}
	return llms.NewCompletion(text.String(), calls, output.StopReason, llms.Usage{
		InputTokens:  output.Usage.InputTokens,
		OutputTokens: output.Usage.OutputTokens,
	})
}

type streamingChunk struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock anthropicOutputContent `json:"content_block"`
	Usage        anthropicUsage         `json:"usage"`
	Message      struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
}

type streamingBlock struct {
	content anthropicOutputContent
	input   strings.Builder
}

func parseStreamingCompletionResponse(ctx context.Context,
	client *bedrockruntime.Client,
	modelInput *bedrockruntime.InvokeModelWithResponseStreamInput,
	options llms.CallOptions,
) (*llms.Completion, error) {
	output, err := client.InvokeModelWithResponseStream(ctx, modelInput)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stream := output.GetStream()
	if stream == nil {
		return nil, errors.New("no stream")
	}
	defer func() {
		_ = stream.Close()
	}()

	result := &anthropicOutput{}
	var blocks []*streamingBlock
	current := func(index int) *streamingBlock {
		if index < 0 || index >= len(blocks) {
			return nil
		}
		return blocks[index]
	}

	for e := range stream.Events() {
		v, ok := e.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var chunk streamingChunk
		if err := json.NewDecoder(bytes.NewReader(v.Value.Bytes)).Decode(&chunk); err != nil {
			return nil, errors.Wrap(err, "failed to decode stream chunk")
		}

		switch chunk.Type {
		case "message_start":
			result.Usage.InputTokens = chunk.Message.Usage.InputTokens
		case "content_block_start":
			blocks = append(blocks, &streamingBlock{content: chunk.ContentBlock})
		case "content_block_delta":
			b := current(chunk.Index)
			if b == nil {
				continue
			}
			switch chunk.Delta.Type {
			case "text_delta":
				if err := options.StreamingFunc(ctx, []byte(chunk.Delta.Text)); err != nil {
					return nil, errors.Wrap(err, "streaming function error")
				}
				b.content.Text += chunk.Delta.Text
			case "input_json_delta":
				b.input.WriteString(chunk.Delta.PartialJSON)
			}
		case "message_delta":
			result.StopReason = chunk.Delta.StopReason
			result.Usage.OutputTokens = chunk.Usage.OutputTokens
		}
	}
	if err = stream.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	for _, b := range blocks {
		if b.content.Type == AnthropicMessageTypeToolUse && b.input.Len() > 0 {
			b.content.Input = json.RawMessage(b.input.String())
		}
		result.Content = append(result.Content, b.content)
	}
	return toCompletion(result), nil
}

// processInputMessagesAnthropic converts the transcript.
// Consecutive tool results are merged into one user message.
func processInputMessagesAnthropic(messages []chatmodel.Message) []*anthropicInputMessage {
	out := make([]*anthropicInputMessage, 0, len(messages))
	var results *anthropicInputMessage

	for _, msg := range messages {
		if msg.Role != chatmodel.RoleToolResult {
			results = nil
		}

		switch msg.Role {
		case chatmodel.RoleUser:
			out = append(out, &anthropicInputMessage{
				Role:    AnthropicRoleUser,
				Content: []anthropicInputContent{{Type: AnthropicMessageTypeText, Text: msg.Text}},
			})
		case chatmodel.RoleAssistant:
			m := &anthropicInputMessage{Role: AnthropicRoleAssistant}
			if msg.Text != "" {
				m.Content = append(m.Content, anthropicInputContent{Type: AnthropicMessageTypeText, Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				var input any = map[string]any{}
				if call.Arguments.Kind() == chatmodel.KindObject {
					input = json.RawMessage(call.Arguments.JSON())
				}
				m.Content = append(m.Content, anthropicInputContent{
					Type:  AnthropicMessageTypeToolUse,
					ID:    call.ID,
					Name:  call.Name,
					Input: input,
				})
			}
			if len(m.Content) > 0 {
				out = append(out, m)
			}
		case chatmodel.RoleToolResult:
			if results == nil {
				results = &anthropicInputMessage{Role: AnthropicRoleUser}
				out = append(out, results)
			}
			for _, r := range msg.Results {
				results.Content = append(results.Content, anthropicInputContent{
					Type:      AnthropicMessageTypeToolResult,
					ToolUseID: r.ID,
					Content:   r.Text(),
					IsError:   r.IsError(),
				})
			}
		}
	}
	return out
}
