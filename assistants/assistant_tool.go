package assistants

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
)

// AssistantInput is the argument of an assistant exposed as a tool.
type AssistantInput struct {
	Input string `json:"input" yaml:"input" jsonschema:"title=input,description=The request for the assistant." validate:"required"`
}

// NewAssistantTool exposes the Assistant as a tool, so it can be delegated to
// by another Assistant. Each call starts a new run with its own conversation.
// A run that fails is reported as a tool error; a run that exhausts its budget
// returns the last text seen.
func NewAssistantTool(a *Assistant, options ...Option) (*tools.Func[AssistantInput, string], error) {
	cfg := a.GetCallConfig(options...)
	description := values.StringsCoalesce(cfg.Description, "Delegates the request to the "+cfg.Name+" assistant.")
	return tools.NewFunc(cfg.Name, description, func(ctx context.Context, in *AssistantInput) (*string, error) {
		// nested runs get their own run ID
		ctx = chatmodel.WithRunContext(ctx, chatmodel.NewRunContext("", nil))
		res, err := a.Run(ctx, in.Input, options...)
		if err != nil {
			if chatmodel.IsConfigurationError(err) {
				return nil, err
			}
			return nil, errors.Mark(errors.WithMessagef(err, "assistant %s failed", cfg.Name), chatmodel.ErrToolExecution)
		}
		return &res.Text, nil
	})
}
