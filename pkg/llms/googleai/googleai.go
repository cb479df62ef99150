package googleai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llms/googleai/internal/genaiutils"
	"github.com/effective-security/xlog"
	"google.golang.org/genai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "googleai")

var (
	ErrNoContentInResponse = errors.New("no content in generation response")
)

const (
	RoleModel = "model"
	RoleUser  = "user"
)

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// Complete implements the [llms.Model] interface.
func (g *GoogleAI) Complete(ctx context.Context, conv *chatmodel.Conversation, tools []chatmodel.ToolDefinition, options ...llms.CallOption) (*llms.Completion, error) {
	opts := llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
		TopK:        g.opts.DefaultTopK,
	}
	for _, opt := range options {
		opt(&opts)
	}

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		CandidateCount:  1,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		TopK:            genaiutils.Float32Ptr(float32(opts.TopK)),
		Seed:            genaiutils.Int32Ptr(int32(opts.Seed)),
	}

	callCfg.SafetySettings = []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: g.opts.HarmThreshold,
		},
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: g.opts.HarmThreshold,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: g.opts.HarmThreshold,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: g.opts.HarmThreshold,
		},
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(tools); err != nil {
		return nil, chatmodel.WrapModelError(err, "googleai: invalid tool definition")
	}
	if len(callCfg.Tools) > 0 {
		callCfg.ToolConfig = ToToolConfig(opts.ToolChoice)
	}

	if preamble := conv.Preamble(); preamble != "" {
		callCfg.SystemInstruction = genai.NewContentFromText(preamble, RoleUser)
	}
	history := ToContents(conv.Messages())

	var resp *genai.GenerateContentResponse
	if opts.StreamingFunc != nil {
		resp, err = g.generateStream(ctx, opts.Model, history, callCfg, opts.StreamingFunc)
	} else {
		resp, err = g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithStack(ctxErr)
		}
		return nil, chatmodel.WrapModelError(err, "googleai: failed to generate content")
	}

	c, err := ToCompletion(resp)
	if err != nil {
		return nil, chatmodel.WrapModelError(err, "googleai: invalid response")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "completed",
		"model", opts.Model,
		"stop_reason", c.StopReason,
		"tool_calls", len(c.ToolCalls),
	)
	return c, nil
}

// generateStream merges the streamed chunks into a single response.
func (g *GoogleAI) generateStream(
	ctx context.Context,
	model string,
	history []*genai.Content,
	config *genai.GenerateContentConfig,
	streamingFunc func(ctx context.Context, chunk []byte) error,
) (*genai.GenerateContentResponse, error) {
	candidate := &genai.Candidate{
		Content: &genai.Content{Role: RoleModel},
	}
	merged := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{candidate},
	}

	for chunk, err := range g.client.Models.GenerateContentStream(ctx, model, history, config) {
		if err != nil {
			return nil, errors.Wrap(err, "error in stream mode")
		}
		if chunk.UsageMetadata != nil {
			merged.UsageMetadata = chunk.UsageMetadata
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		rc := chunk.Candidates[0]
		if rc.FinishReason != "" {
			candidate.FinishReason = rc.FinishReason
		}
		if rc.Content == nil {
			continue
		}
		candidate.Content.Parts = append(candidate.Content.Parts, rc.Content.Parts...)
		for _, part := range rc.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			if err := streamingFunc(ctx, []byte(part.Text)); err != nil {
				return nil, errors.Wrap(err, "streaming function error")
			}
		}
	}
	return merged, nil
}

// ToCompletion converts the first candidate of a response.
func ToCompletion(resp *genai.GenerateContentResponse) (*llms.Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	var calls []chatmodel.ToolCall
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := chatmodel.FromAny(part.FunctionCall.Args)
				if err != nil || args.IsNull() {
					args, _ = chatmodel.NewObject()
				}
				calls = append(calls, chatmodel.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			case part.Thought:
			case part.Text != "":
				text.WriteString(part.Text)
			}
		}
	}

	var usage llms.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = llms.Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount + u.ToolUsePromptTokenCount + u.ThoughtsTokenCount),
			TotalTokens:  int64(u.TotalTokenCount),
		}
	}

	return llms.NewCompletion(text.String(), calls, string(candidate.FinishReason), usage), nil
}

// ToContents converts the transcript. Consecutive tool results are merged
// into one user content of function responses.
func ToContents(messages []chatmodel.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	var responses *genai.Content

	for _, msg := range messages {
		if msg.Role != chatmodel.RoleToolResult {
			responses = nil
		}

		switch msg.Role {
		case chatmodel.RoleUser:
			if msg.Text != "" {
				history = append(history, genai.NewContentFromText(msg.Text, RoleUser))
			}
		case chatmodel.RoleAssistant:
			c := &genai.Content{Role: RoleModel}
			if msg.Text != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments.Map()
				if args == nil {
					args = map[string]any{}
				}
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: args,
					},
				})
			}
			if len(c.Parts) > 0 {
				history = append(history, c)
			}
		case chatmodel.RoleToolResult:
			if responses == nil {
				responses = &genai.Content{Role: RoleUser}
				history = append(history, responses)
			}
			for _, r := range msg.Results {
				key := "output"
				if r.IsError() {
					key = "error"
				}
				responses.Parts = append(responses.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       r.ID,
						Name:     r.Name,
						Response: map[string]any{key: r.Text()},
					},
				})
			}
		}
	}
	return history
}

// ToToolConfig converts a tool choice option.
func ToToolConfig(choice string) *genai.ToolConfig {
	cfg := &genai.FunctionCallingConfig{}
	switch choice {
	case "", llms.ToolChoiceAuto:
		cfg.Mode = genai.FunctionCallingConfigModeAuto
	case llms.ToolChoiceNone:
		cfg.Mode = genai.FunctionCallingConfigModeNone
	case llms.ToolChoiceRequired:
		cfg.Mode = genai.FunctionCallingConfigModeAny
	default:
		cfg.Mode = genai.FunctionCallingConfigModeAny
		cfg.AllowedFunctionNames = []string{choice}
	}
	return &genai.ToolConfig{FunctionCallingConfig: cfg}
}
