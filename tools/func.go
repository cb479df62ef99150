package tools

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var validate = validator.New()

// RunFunc is the typed body of a Func tool.
type RunFunc[I any, O any] func(ctx context.Context, in *I) (*O, error)

// Func adapts a typed function into a Tool. The input type drives both the
// parameter schema and the argument validation.
type Func[I any, O any] struct {
	name        string
	description string
	params      *jsonschema.Schema
	run         RunFunc[I, O]
}

var _ Tool[struct{}, string] = (*Func[struct{}, string])(nil)

// NewFunc returns a Func tool. The input type must be a struct.
func NewFunc[I any, O any](name, description string, run RunFunc[I, O]) (*Func[I, O], error) {
	if name == "" {
		return nil, chatmodel.NewConfigurationError("tool name is required")
	}
	if run == nil {
		return nil, chatmodel.NewConfigurationError("tool %s: function is required", name)
	}
	sc, err := schema.For[I]()
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %s", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		params:      sc.Parameters,
		run:         run,
	}, nil
}

// MustFunc is like NewFunc but panics on error.
func MustFunc[I any, O any](name, description string, run RunFunc[I, O]) *Func[I, O] {
	f, err := NewFunc(name, description, run)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Func[I, O]) Name() string {
	return f.name
}

func (f *Func[I, O]) Description() string {
	return f.description
}

func (f *Func[I, O]) Parameters() *jsonschema.Schema {
	return f.params
}

// Run validates the input and invokes the function.
func (f *Func[I, O]) Run(ctx context.Context, in *I) (*O, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, chatmodel.NewToolError("invalid_arguments", verrs.Error())
		}
		return nil, errors.WithStack(err)
	}
	return f.run(ctx, in)
}

// Call decodes args into the input type and runs the tool.
func (f *Func[I, O]) Call(ctx context.Context, args chatmodel.Value) ([]chatmodel.Content, error) {
	if args.IsNull() {
		args, _ = chatmodel.NewObject()
	}
	if args.Kind() != chatmodel.KindObject {
		return nil, errors.Mark(
			errors.Newf("expected JSON object arguments, got %s", args.Kind()),
			chatmodel.ErrFailedUnmarshalInput)
	}
	in := new(I)
	if err := args.Decode(in); err != nil {
		return nil, err
	}
	out, err := f.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return ToContent(out)
}

// ToContent renders a tool output as content blocks.
func ToContent(out any) ([]chatmodel.Content, error) {
	switch v := out.(type) {
	case nil:
		return nil, nil
	case []chatmodel.Content:
		return v, nil
	case chatmodel.Content:
		return []chatmodel.Content{v}, nil
	case *string:
		if v == nil {
			return nil, nil
		}
		return []chatmodel.Content{chatmodel.NewTextContent(*v)}, nil
	case string:
		return []chatmodel.Content{chatmodel.NewTextContent(v)}, nil
	case ContentProvider:
		return []chatmodel.Content{chatmodel.NewTextContent(v.GetContent())}, nil
	case fmt.Stringer:
		return []chatmodel.Content{chatmodel.NewTextContent(v.String())}, nil
	}
	c, err := chatmodel.NewJSONContent(out)
	if err != nil {
		return nil, err
	}
	return []chatmodel.Content{c}, nil
}
