package chatmodel

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrToolNotFound is returned when a tool call names a tool that is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExecution marks a domain-level failure reported by a tool.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrTransport marks a failure reaching a remote tool provider.
	ErrTransport = errors.New("transport error")
	// ErrTimeout marks a call that exceeded its deadline.
	ErrTimeout = errors.New("timed out")
	// ErrModel marks a failure reported by the completion provider.
	ErrModel = errors.New("model error")
	// ErrConfiguration marks invalid configuration detected before a run starts.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrFailedUnmarshalInput is returned by tools that cannot decode their arguments.
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
)

// FailureKind tags a failed ToolResult.
type FailureKind string

const (
	FailureToolNotFound FailureKind = "tool_not_found"
	FailureToolError    FailureKind = "tool_error"
	FailureTransport    FailureKind = "transport_error"
	FailureTimeout      FailureKind = "timeout"
	FailureCancelled    FailureKind = "cancelled"
)

// Classify maps an error returned by a tool handle to a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrToolNotFound):
		return FailureToolNotFound
	case errors.Is(err, ErrTransport):
		return FailureTransport
	default:
		return FailureToolError
	}
}

// ToolError is a domain error reported by a tool, with a machine readable code.
type ToolError struct {
	Code    string
	Message string
	Detail  Value
}

// NewToolError returns a ToolError with the given code and message.
func NewToolError(code, message string) *ToolError {
	return &ToolError{Code: code, Message: message}
}

// WithDetail returns a copy of the error carrying structured detail.
func (e *ToolError) WithDetail(detail Value) *ToolError {
	c := *e
	c.Detail = detail
	return &c
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Is reports ToolError as ErrToolExecution.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolExecution
}

// IsConfigurationError returns true if err is marked as ErrConfiguration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsModelError returns true if err is marked as ErrModel.
func IsModelError(err error) bool {
	return errors.Is(err, ErrModel)
}

// NewConfigurationError returns an error marked as ErrConfiguration.
func NewConfigurationError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// WrapModelError marks err as ErrModel.
func WrapModelError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WithMessage(err, msg), ErrModel)
}

// WrapTransportError marks err as ErrTransport.
func WrapTransportError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WithMessage(err, msg), ErrTransport)
}
