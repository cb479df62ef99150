package tools

import (
	"context"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/invopop/jsonschema"
)

//go:generate mockgen -source=tool.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the JSON schema of the tool arguments.
	Parameters() *jsonschema.Schema
	// Call executes the tool with the given arguments.
	// The tool owns validation of its arguments: if it cannot decode them,
	// it should return an error marked with chatmodel.ErrFailedUnmarshalInput.
	Call(ctx context.Context, args chatmodel.Value) ([]chatmodel.Content, error)
}

// Tool is an ITool with a typed entry point.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// ContentProvider is implemented by tool outputs that render themselves as text.
type ContentProvider interface {
	GetContent() string
}

// Definition returns the descriptor presented to a model.
func Definition(t ITool) chatmodel.ToolDefinition {
	return chatmodel.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
