package assistants

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/xlog"
)

// dispatch executes the calls of one round and returns exactly one result
// per call, in call order. When ctx is done, the calls that did not complete
// get cancelled results and the context error is returned.
func (a *Assistant) dispatch(ctx context.Context, cfg *Config, calls []chatmodel.ToolCall) ([]chatmodel.ToolResult, error) {
	results := make([]chatmodel.ToolResult, len(calls))

	if cfg.Sequential || len(calls) == 1 {
		for i, call := range calls {
			if ctx.Err() != nil {
				results[i] = cancelledResult(call)
				continue
			}
			results[i] = a.execute(ctx, cfg, call)
		}
	} else {
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(i int, call chatmodel.ToolCall) {
				defer wg.Done()
				results[i] = a.execute(ctx, cfg, call)
			}(i, call)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", cfg.Name,
			"status", "dispatch_cancelled",
			"calls", len(calls),
		)
		return results, errors.WithStack(err)
	}
	return results, nil
}

// execute runs one call under the tool deadline. A call that does not return
// in time is abandoned and gets a timeout result, or a cancelled result
// when the run itself was cancelled.
func (a *Assistant) execute(ctx context.Context, cfg *Config, call chatmodel.ToolCall) chatmodel.ToolResult {
	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnToolStart(ctx, cfg.Name, call)
	}

	tctx := ctx
	if cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, cfg.ToolTimeout)
		defer cancel()
	}

	done := make(chan chatmodel.ToolResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ContextKV(ctx, xlog.ERROR,
					"agent", cfg.Name,
					"status", "registry_panic",
					"tool", call.Name,
					"panic", fmt.Sprint(rec),
				)
				done <- chatmodel.NewFailure(call.ID, call.Name, chatmodel.FailureToolError, "internal error")
			}
		}()
		done <- a.registry.Execute(tctx, call)
	}()

	var res chatmodel.ToolResult
	select {
	case res = <-done:
	case <-tctx.Done():
		if ctx.Err() != nil {
			res = cancelledResult(call)
		} else {
			res = chatmodel.NewFailure(call.ID, call.Name, chatmodel.FailureTimeout,
				fmt.Sprintf("tool %s did not complete within %s", call.Name, cfg.ToolTimeout))
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", cfg.Name,
			"status", "tool_abandoned",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"reason", res.Failure.Kind,
		)
	}

	// the result always answers the call it was dispatched for
	res.ID = call.ID
	res.Name = call.Name

	if callback != nil {
		switch {
		case res.Failure == nil:
			callback.OnToolEnd(ctx, cfg.Name, call, res)
		case res.Failure.Kind == chatmodel.FailureToolNotFound:
			callback.OnToolNotFound(ctx, cfg.Name, call)
		default:
			callback.OnToolError(ctx, cfg.Name, call, res)
		}
	}
	return res
}

func cancelledResult(call chatmodel.ToolCall) chatmodel.ToolResult {
	return chatmodel.NewFailure(call.ID, call.Name, chatmodel.FailureCancelled, "the run was cancelled before the tool completed")
}
