package assistants

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Assistant runs the completion loop for one model and tool registry.
// It holds no per-run state and can be used concurrently.
type Assistant struct {
	model    llms.Model
	registry ToolRegistry
	cfg      *Config
}

// NewAssistant returns an Assistant. The configuration is validated by Run.
func NewAssistant(model llms.Model, registry ToolRegistry, options ...Option) *Assistant {
	return &Assistant{
		model:    model,
		registry: registry,
		cfg:      NewConfig(options...),
	}
}

// Name returns the name of the Assistant.
func (a *Assistant) Name() string {
	return a.cfg.Name
}

// Description returns the description of the Assistant.
func (a *Assistant) Description() string {
	return a.cfg.Description
}

// Model returns the completion model.
func (a *Assistant) Model() llms.Model {
	return a.model
}

// Registry returns the tool registry.
func (a *Assistant) Registry() ToolRegistry {
	return a.registry
}

// GetCallConfig returns the run config with opts applied.
func (a *Assistant) GetCallConfig(opts ...Option) *Config {
	return a.cfg.Apply(opts...)
}

func validateConfig(cfg *Config, model llms.Model, registry ToolRegistry) error {
	if model == nil {
		return chatmodel.NewConfigurationError("assistant %s: model is required", cfg.Name)
	}
	if registry == nil {
		return chatmodel.NewConfigurationError("assistant %s: tool registry is required", cfg.Name)
	}
	if cfg.MaxTurns < 1 {
		return chatmodel.NewConfigurationError("assistant %s: max turns must be at least 1, got %d", cfg.Name, cfg.MaxTurns)
	}
	if cfg.ToolTimeout < 0 || cfg.ModelTimeout < 0 {
		return chatmodel.NewConfigurationError("assistant %s: timeouts must not be negative", cfg.Name)
	}
	return nil
}

// Run starts a new conversation with the configured preamble and runs
// the loop for prompt.
func (a *Assistant) Run(ctx context.Context, prompt string, opts ...Option) (*Result, error) {
	cfg := a.GetCallConfig(opts...)
	return a.Continue(ctx, chatmodel.NewConversation(cfg.Preamble), prompt, opts...)
}

// Continue runs the loop for prompt on an existing conversation.
// The conversation must not be modified by the caller while the run is active.
func (a *Assistant) Continue(ctx context.Context, conv *chatmodel.Conversation, prompt string, opts ...Option) (*Result, error) {
	cfg := a.GetCallConfig(opts...)
	if err := validateConfig(cfg, a.model, a.registry); err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, chatmodel.NewConfigurationError("assistant %s: conversation is required", cfg.Name)
	}

	started := time.Now()
	defer metricskey.PerfRun.MeasureSince(started, cfg.Name)

	rc := chatmodel.GetRunContext(ctx)
	if rc == nil {
		rc = chatmodel.NewRunContext("", nil)
		ctx = chatmodel.WithRunContext(ctx, rc)
	}

	res := &Result{
		RunID:        rc.RunID(),
		State:        StateRunning,
		Conversation: conv,
	}
	first := conv.Len()

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnRunStart(ctx, cfg.Name, prompt)
	}

	err := a.run(ctx, cfg, res, prompt)
	for _, m := range conv.Messages()[first:] {
		res.ToolResults = append(res.ToolResults, m.Results...)
	}

	if err != nil {
		res.State = StateFailed
		res.Err = err
		metricskey.StatsRunsFailed.IncrCounter(1, cfg.Name)
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", cfg.Name,
			"run_id", res.RunID,
			"status", "run_failed",
			"turns", res.Turns,
			"err", err.Error(),
		)
		if callback != nil {
			callback.OnRunError(ctx, cfg.Name, res, err)
		}
		return res, err
	}

	if res.State == StateAnswered {
		metricskey.StatsRunsAnswered.IncrCounter(1, cfg.Name)
	} else {
		metricskey.StatsRunsBudgetExhausted.IncrCounter(1, cfg.Name)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", cfg.Name,
		"run_id", res.RunID,
		"status", res.State,
		"turns", res.Turns,
		"tool_results", len(res.ToolResults),
		"result", slices.StringUpto(res.Text, 64),
	)
	if callback != nil {
		callback.OnRunEnd(ctx, cfg.Name, res)
	}
	return res, nil
}

// run executes the rounds. Every tool call of a round has its result
// appended before the next model call, and the budget is spent once per round.
func (a *Assistant) run(ctx context.Context, cfg *Config, res *Result, prompt string) error {
	conv := res.Conversation
	if err := conv.Append(chatmodel.UserMessage(prompt)); err != nil {
		return err
	}

	defs := a.registry.List()
	if len(defs) > 0 && !a.model.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
		return chatmodel.NewConfigurationError("assistant %s: the model does not support function calling", cfg.Name)
	}
	callOpts := cfg.GetCallOptions()

	var lastText string
	for remaining := cfg.MaxTurns; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		resp, err := a.complete(ctx, cfg, conv, defs, callOpts)
		if err != nil {
			return err
		}
		res.Turns++
		res.Usage.Add(resp.Usage)

		if resp.IsFinal() {
			if resp.Text != "" {
				if err = conv.Append(chatmodel.AssistantMessage(resp.Text)); err != nil {
					return err
				}
			}
			res.State = StateAnswered
			res.Text = resp.Text
			return nil
		}

		if resp.DiscardedText != "" {
			lastText = resp.DiscardedText
			logger.ContextKV(ctx, xlog.DEBUG,
				"agent", cfg.Name,
				"status", "discarded_text",
				"text", slices.StringUpto(resp.DiscardedText, 64),
			)
		}

		calls := llms.EnsureToolCallIDs(resp.ToolCalls)
		if err = conv.Append(chatmodel.AssistantMessage("", calls...)); err != nil {
			return err
		}

		results, dispatchErr := a.dispatch(ctx, cfg, calls)
		for _, r := range results {
			if err = conv.Append(chatmodel.ToolResultMessage(r)); err != nil {
				return err
			}
		}
		if dispatchErr != nil {
			return dispatchErr
		}
	}

	res.State = StateBudgetExhausted
	res.Text = values.StringsCoalesce(lastText, conv.LastAssistantText())
	logger.ContextKV(ctx, xlog.WARNING,
		"agent", cfg.Name,
		"status", "budget_exhausted",
		"max_turns", cfg.MaxTurns,
	)
	return nil
}

// complete performs one model call under the model deadline.
func (a *Assistant) complete(ctx context.Context, cfg *Config, conv *chatmodel.Conversation, defs []chatmodel.ToolDefinition, callOpts []llms.CallOption) (*llms.Completion, error) {
	modelName := a.model.GetName()

	mctx := ctx
	if cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, cfg.ModelTimeout)
		defer cancel()
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnModelCallStart(ctx, cfg.Name, a.model, conv)
	}

	metricskey.StatsLLMMessagesSent.IncrCounter(float64(conv.Len()), cfg.Name, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(conv.Size()), cfg.Name, modelName)

	started := time.Now()
	resp, err := a.model.Complete(mctx, conv, defs, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, cfg.Name, modelName)
	if err == nil && resp == nil {
		err = chatmodel.WrapModelError(errors.New("empty response"), "model returned no completion")
	}
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, cfg.Name, modelName)
		switch {
		case ctx.Err() != nil:
			return nil, errors.WithStack(ctx.Err())
		case mctx.Err() != nil:
			err = errors.Mark(errors.Newf("model call timed out after %s", cfg.ModelTimeout), chatmodel.ErrTimeout)
			return nil, errors.Mark(err, chatmodel.ErrModel)
		case !chatmodel.IsModelError(err):
			err = chatmodel.WrapModelError(err, "model call failed")
		}
		return nil, errors.WithMessagef(err, "assistant %s", cfg.Name)
	}

	metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.InputTokens), cfg.Name, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.OutputTokens), cfg.Name, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(resp.Usage.TotalTokens), cfg.Name, modelName)

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnModelCallEnd(ctx, cfg.Name, a.model, resp)
	}
	return resp, nil
}
