// Package counter provides tools over a shared store.Counter.
package counter

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
)

const (
	IncrementToolName = "increment_counter"
	GetToolName       = "get_counter"
)

// Request is the empty input of the counter tools.
type Request struct{}

// Value is the output of the counter tools.
type Value struct {
	Value int64 `json:"value"`
}

func (v *Value) GetContent() string {
	return strconv.FormatInt(v.Value, 10)
}

// New returns the increment and get tools sharing c.
func New(c store.Counter) []tools.ITool {
	inc := tools.MustFunc(IncrementToolName, "Increment an internal counter and return the new value",
		func(ctx context.Context, _ *Request) (*Value, error) {
			v, err := c.Increment(ctx, 1)
			if err != nil {
				return nil, errors.WithMessage(err, "increment_counter")
			}
			return &Value{Value: v}, nil
		})
	get := tools.MustFunc(GetToolName, "Get the current counter value",
		func(ctx context.Context, _ *Request) (*Value, error) {
			v, err := c.Value(ctx)
			if err != nil {
				return nil, errors.WithMessage(err, "get_counter")
			}
			return &Value{Value: v}, nil
		})
	return []tools.ITool{inc, get}
}
