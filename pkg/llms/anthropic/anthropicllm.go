package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "anthropic")

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const (
	DefaultMaxTokens  = 4096
	DefaultMaxRetries = 2
)

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client using the official Anthropic SDK.
//
// If no token is provided via options, the API key is read
// from the ANTHROPIC_API_KEY environment variable.
//
// Example usage:
//
//	llm, err := anthropic.New(
//	    anthropic.WithToken("your-api-key"),
//	    anthropic.WithModel("claude-3-5-sonnet-20241022"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conv := chatmodel.NewConversation("You are a helpful assistant.")
//	_ = conv.Append(chatmodel.UserMessage("What is 2+2?"))
//	resp, err := llm.Complete(ctx, conv, nil)
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		BaseURL:    "https://api.anthropic.com",
		HttpClient: http.DefaultClient,
		MaxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, errors.Mark(ErrMissingToken, chatmodel.ErrConfiguration)
	}
	if options.Model == "" {
		return nil, chatmodel.NewConfigurationError("anthropic: model is required")
	}

	return &LLM{
		Client:  newClient(options),
		Options: options,
	}, nil
}

func newClient(options *Options) *anthropic.Client {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(5 * time.Minute),
	}

	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	if options.AnthropicBetaHeader != "" {
		sdkOpts = append(sdkOpts, option.WithHeader("anthropic-beta", options.AnthropicBetaHeader))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &client
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// Complete implements the Model interface.
func (o *LLM) Complete(ctx context.Context, conv *chatmodel.Conversation, tools []chatmodel.ToolDefinition, options ...llms.CallOption) (*llms.Completion, error) {
	opts := llms.NewCallOptions(o.Options.Model, options...)

	params, err := o.buildParams(conv, tools, opts)
	if err != nil {
		return nil, chatmodel.WrapModelError(err, "anthropic: failed to build request")
	}

	if opts.StreamingFunc != nil {
		resp, err := o.completeStreaming(ctx, params, opts.StreamingFunc)
		if err != nil {
			return nil, chatmodel.WrapModelError(err, "anthropic: streaming failed")
		}
		return resp, nil
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithStack(ctxErr)
		}
		return nil, chatmodel.WrapModelError(err, "anthropic: failed to create message")
	}

	resp, err := ToCompletion(result)
	if err != nil {
		return nil, chatmodel.WrapModelError(err, "anthropic: invalid response")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "completed",
		"model", opts.Model,
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

func (o *LLM) buildParams(conv *chatmodel.Conversation, tools []chatmodel.ToolDefinition, opts *llms.CallOptions) (anthropic.MessageNewParams, error) {
	sdkMessages, err := ProcessMessages(conv.Messages())
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}

	if preamble := conv.Preamble(); preamble != "" {
		block := anthropic.TextBlockParam{Text: preamble}
		if o.Options.PromptCache {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if opts.TopK > 0 {
		params.TopK = anthropic.Int(int64(opts.TopK))
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	if userID, ok := opts.Metadata["user_id"].(string); ok && userID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(userID)}
	}

	if sdkTools := ToTools(tools); len(sdkTools) > 0 {
		if o.Options.PromptCache {
			sdkTools[len(sdkTools)-1].OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.Tools = sdkTools
		params.ToolChoice = ToToolChoice(opts.ToolChoice)
	}
	return params, nil
}

// ToCompletion converts an Anthropic message into a Completion.
func ToCompletion(result *anthropic.Message) (*llms.Completion, error) {
	if result == nil {
		return nil, ErrEmptyResponse
	}

	var text strings.Builder
	var calls []chatmodel.ToolCall
	for _, contentBlock := range result.Content {
		switch content := contentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			calls = append(calls, chatmodel.ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: chatmodel.ParseArguments(string(content.Input)),
			})
		case anthropic.ThinkingBlock, anthropic.RedactedThinkingBlock:
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", content)
		}
	}

	return llms.NewCompletion(text.String(), calls, string(result.StopReason), llms.Usage{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}), nil
}

func (o *LLM) completeStreaming(ctx context.Context, params anthropic.MessageNewParams, streamingFunc func(context.Context, []byte) error) (*llms.Completion, error) {
	stream := o.Client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	var calls []chatmodel.ToolCall
	var current *chatmodel.ToolCall
	var args strings.Builder
	var stopReason string
	var usage llms.Usage

	for stream.Next() {
		event := stream.Current()

		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = evt.Message.Usage.InputTokens
		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				current = &chatmodel.ToolCall{
					ID:   block.ID,
					Name: block.Name,
				}
				args.Reset()
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				content.WriteString(delta.Text)
				if err := streamingFunc(ctx, []byte(delta.Text)); err != nil {
					return nil, errors.Wrap(err, "streaming function error")
				}
			case anthropic.InputJSONDelta:
				if current != nil {
					args.WriteString(delta.PartialJSON)
				}
			}
		case anthropic.ContentBlockStopEvent:
			if current != nil {
				current.Arguments = chatmodel.ParseArguments(args.String())
				calls = append(calls, *current)
				current = nil
			}
		case anthropic.MessageDeltaEvent:
			stopReason = string(evt.Delta.StopReason)
			usage.OutputTokens = evt.Usage.OutputTokens
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithStack(ctxErr)
		}
		return nil, errors.WithStack(err)
	}

	return llms.NewCompletion(content.String(), calls, stopReason, usage), nil
}

// ToTools converts tool definitions to Anthropic SDK tool parameters.
// Returns nil if no tools are provided.
func ToTools(tools []chatmodel.ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := tool.ParametersMap()
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}
		if required, ok := schema["required"].([]any); ok && len(required) > 0 {
			for _, r := range required {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}

		sdkTools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return sdkTools
}

// ToToolChoice converts a tool choice option.
func ToToolChoice(choice string) anthropic.ToolChoiceUnionParam {
	switch choice {
	case "", llms.ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case llms.ToolChoiceNone:
		none := anthropic.NewToolChoiceNoneParam()
		return anthropic.ToolChoiceUnionParam{OfNone: &none}
	case llms.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceParamOfTool(choice)
	}
}

// ProcessMessages converts the transcript to Anthropic SDK message parameters.
//
// Tool results are sent as user messages with tool_result blocks.
// Consecutive tool_result messages are merged into one user message,
// since the API requires all results of a round in a single message.
func ProcessMessages(messages []chatmodel.Message) ([]anthropic.MessageParam, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			chatMessages = append(chatMessages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case chatmodel.RoleUser:
			flush()
			if msg.Text == "" {
				continue
			}
			chatMessages = append(chatMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		case chatmodel.RoleAssistant:
			flush()
			chatMessage, ok := HandleAssistantMessage(msg)
			if ok {
				chatMessages = append(chatMessages, chatMessage)
			}
		case chatmodel.RoleToolResult:
			for _, r := range msg.Results {
				results = append(results, anthropic.NewToolResultBlock(r.ID, r.Text(), r.IsError()))
			}
		default:
			return nil, errors.WithMessagef(ErrUnsupportedMessageType, "anthropic: %v", msg.Role)
		}
	}
	flush()
	return chatMessages, nil
}

// HandleAssistantMessage converts an assistant message with its tool calls.
func HandleAssistantMessage(msg chatmodel.Message) (anthropic.MessageParam, bool) {
	var contents []anthropic.ContentBlockParamUnion
	if msg.Text != "" {
		contents = append(contents, anthropic.NewTextBlock(msg.Text))
	}
	for _, call := range msg.ToolCalls {
		contents = append(contents, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
	}
	if len(contents) == 0 {
		return anthropic.MessageParam{}, false
	}
	return anthropic.NewAssistantMessage(contents...), true
}

func toolInput(args chatmodel.Value) json.RawMessage {
	if args.Kind() != chatmodel.KindObject {
		return json.RawMessage(`{}`)
	}
	return args.JSON()
}
