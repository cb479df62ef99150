package openai

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var (
	ErrEmptyResponse = openaiclient.ErrEmptyResponse
	ErrMissingToken  = errors.New("missing the OpenAI API key, set it in the OPENAI_API_KEY environment variable")
)

type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
	}, nil
}

func newClient(opts ...Option) (*openaiclient.Client, error) {
	options := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      values.StringsCoalesce(os.Getenv(baseURLEnvVarName), os.Getenv(baseAPIBaseEnvVarName)),
		organization: os.Getenv(organizationEnvVarName),
		provider:     ProviderOpenAI,
		maxRetries:   openaiclient.DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.token) == 0 {
		return nil, errors.Mark(ErrMissingToken, chatmodel.ErrConfiguration)
	}
	if openaiclient.IsAzure(options.provider) {
		if options.model == "" {
			return nil, chatmodel.NewConfigurationError("openai: model is required for Azure deployments")
		}
		if options.apiVersion == "" {
			options.apiVersion = DefaultAPIVersion
		}
	}

	return openaiclient.New(openaiclient.Config{
		Provider:     options.provider,
		Model:        options.model,
		Token:        options.token,
		BaseURL:      options.baseURL,
		Organization: options.organization,
		APIVersion:   options.apiVersion,
		HTTPClient:   options.httpClient,
		MaxRetries:   options.maxRetries,
	}), nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return values.StringsCoalesce(o.client.Model, openaiclient.DefaultChatModel)
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// Complete implements the Model interface.
func (o *LLM) Complete(ctx context.Context, conv *chatmodel.Conversation, tools []chatmodel.ToolDefinition, options ...llms.CallOption) (*llms.Completion, error) {
	opts := llms.NewCallOptions(o.client.Model, options...)

	req := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: ToMessages(conv),
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = sdk.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		req.Temperature = sdk.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		req.TopP = sdk.Float(opts.TopP)
	}
	if opts.Seed != 0 {
		req.Seed = sdk.Int(int64(opts.Seed))
	}
	if len(opts.StopWords) > 0 {
		req.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if len(opts.Metadata) > 0 {
		req.Metadata = shared.Metadata{}
		for k, v := range opts.Metadata {
			if s, ok := v.(string); ok {
				req.Metadata[k] = s
			}
		}
	}
	if len(tools) > 0 {
		req.Tools = ToTools(tools)
		req.ToolChoice = ToToolChoice(opts.ToolChoice)
	}

	var result *sdk.ChatCompletion
	var err error
	if opts.StreamingFunc != nil {
		result, err = o.client.CreateStreamingChat(ctx, req, opts.StreamingFunc)
	} else {
		result, err = o.client.CreateChat(ctx, req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithStack(ctxErr)
		}
		return nil, chatmodel.WrapModelError(err, "openai: failed to create chat completion")
	}

	return ToCompletion(result), nil
}

// ToCompletion converts the first choice of a chat completion.
func ToCompletion(result *sdk.ChatCompletion) *llms.Completion {
	c := result.Choices[0]

	var calls []chatmodel.ToolCall
	for _, tc := range c.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		calls = append(calls, chatmodel.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: chatmodel.ParseArguments(tc.Function.Arguments),
		})
	}

	return llms.NewCompletion(c.Message.Content, calls, c.FinishReason, llms.Usage{
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		TotalTokens:  result.Usage.TotalTokens,
	})
}

// ToMessages converts the conversation, with the preamble as the system message.
// Each tool result is a separate tool message.
func ToMessages(conv *chatmodel.Conversation) []sdk.ChatCompletionMessageParamUnion {
	messages := conv.Messages()
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if preamble := conv.Preamble(); preamble != "" {
		out = append(out, sdk.SystemMessage(preamble))
	}

	for _, msg := range messages {
		switch msg.Role {
		case chatmodel.RoleUser:
			out = append(out, sdk.UserMessage(msg.Text))
		case chatmodel.RoleAssistant:
			asst := sdk.ChatCompletionAssistantMessageParam{}
			if msg.Text != "" {
				asst.Content.OfString = sdk.String(msg.Text)
			}
			for _, call := range msg.ToolCalls {
				args := "{}"
				if call.Arguments.Kind() == chatmodel.KindObject {
					args = string(call.Arguments.JSON())
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: args,
						},
					},
				})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case chatmodel.RoleToolResult:
			for _, r := range msg.Results {
				out = append(out, sdk.ToolMessage(r.Text(), r.ID))
			}
		}
	}
	return out
}

// ToTools converts tool definitions to function tools.
func ToTools(tools []chatmodel.ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	ret := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		ret = append(ret, sdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  shared.FunctionParameters(t.ParametersMap()),
		}))
	}
	return ret
}

// ToToolChoice converts a tool choice option.
func ToToolChoice(choice string) sdk.ChatCompletionToolChoiceOptionUnionParam {
	switch choice {
	case "":
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String(llms.ToolChoiceAuto)}
	case llms.ToolChoiceAuto, llms.ToolChoiceNone, llms.ToolChoiceRequired:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String(choice)}
	default:
		return sdk.ToolChoiceOptionFunctionToolChoice(sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: choice})
	}
}
