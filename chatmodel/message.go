package chatmodel

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
)

// Role of a Message author.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Valid returns true for the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleToolResult:
		return true
	}
	return false
}

// ContentType of a Content block.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeBlob  ContentType = "blob"
	ContentTypeJSON  ContentType = "json"
)

// Content is a block of tool output.
type Content struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Data     []byte      `json:"data,omitempty"`
	MIMEType string      `json:"mime_type,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

func NewBlobContent(data []byte, mimeType string) Content {
	typ := ContentTypeBlob
	if strings.HasPrefix(mimeType, "image/") {
		typ = ContentTypeImage
	}
	return Content{Type: typ, Data: data, MIMEType: mimeType}
}

// NewJSONContent renders v as a JSON text block.
func NewJSONContent(v any) (Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{}, errors.Wrap(err, "unable to encode content")
	}
	return Content{Type: ContentTypeJSON, Text: string(raw), MIMEType: "application/json"}, nil
}

// String returns the text form of the block as presented to a model.
func (c Content) String() string {
	switch c.Type {
	case ContentTypeText, ContentTypeJSON:
		return c.Text
	}
	return "data:" + c.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments Value  `json:"arguments"`
}

// Failure describes why a tool call did not produce content.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Detail  Value       `json:"detail,omitempty"`
}

// ErrorCode returns the tool supplied code, or the failure kind.
func (f *Failure) ErrorCode() string {
	if f.Code != "" {
		return f.Code
	}
	return string(f.Kind)
}

// ToolResult is the outcome of exactly one ToolCall.
type ToolResult struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Content []Content `json:"content,omitempty"`
	Failure *Failure  `json:"failure,omitempty"`
}

// NewToolResult returns a successful result.
func NewToolResult(id, name string, content ...Content) ToolResult {
	return ToolResult{ID: id, Name: name, Content: content}
}

// NewFailureResult converts err into a failed result.
func NewFailureResult(id, name string, err error) ToolResult {
	f := &Failure{
		Kind:    Classify(err),
		Message: err.Error(),
	}
	var te *ToolError
	if errors.As(err, &te) {
		f.Code = te.Code
		f.Detail = te.Detail
		f.Message = values.StringsCoalesce(te.Message, f.Message)
	} else if errors.Is(err, ErrFailedUnmarshalInput) {
		f.Code = "invalid_arguments"
	}
	return ToolResult{ID: id, Name: name, Failure: f}
}

// NewFailure returns a failed result of the given kind.
func NewFailure(id, name string, kind FailureKind, message string) ToolResult {
	return ToolResult{ID: id, Name: name, Failure: &Failure{Kind: kind, Message: message}}
}

// IsError returns true if the call failed.
func (r ToolResult) IsError() bool {
	return r.Failure != nil
}

// Text renders the result as the text fed back to the model.
func (r ToolResult) Text() string {
	if r.Failure != nil {
		out := map[string]any{
			"error": r.Failure.ErrorCode(),
		}
		if r.Failure.Message != "" {
			out["message"] = r.Failure.Message
		}
		if !r.Failure.Detail.IsNull() {
			out["detail"] = r.Failure.Detail
		}
		raw, _ := json.Marshal(out)
		return string(raw)
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "\n")
}

// ToolDefinition describes a tool to a model.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ParametersMap returns the parameter schema as a generic JSON object.
func (d ToolDefinition) ParametersMap() map[string]any {
	ret := map[string]any{}
	if d.Parameters != nil {
		raw, err := json.Marshal(d.Parameters)
		if err == nil {
			_ = json.Unmarshal(raw, &ret)
		}
	}
	if _, ok := ret["type"]; !ok {
		ret["type"] = "object"
	}
	if _, ok := ret["properties"]; !ok {
		ret["properties"] = map[string]any{}
	}
	return ret
}

// Message is one entry of a Conversation.
type Message struct {
	Role      Role         `json:"role"`
	Text      string       `json:"text,omitempty"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Results   []ToolResult `json:"results,omitempty"`
}

// UserMessage returns a user text message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage returns an assistant message with optional tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResultMessage wraps results into a tool_result message.
func ToolResultMessage(results ...ToolResult) Message {
	return Message{Role: RoleToolResult, Results: results}
}
