package mcp

import (
	"encoding/base64"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/invopop/jsonschema"
)

const (
	// ProtocolVersion is the latest MCP revision supported.
	ProtocolVersion = "2025-03-26"

	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// SupportedProtocolVersions lists the revisions a server accepts, newest first.
var SupportedProtocolVersions = []string{ProtocolVersion, "2024-11-05"}

// Implementation names a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeRequest struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ToolDescriptor is a tool as listed by a server.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// Definition returns the descriptor presented to a model.
func (d ToolDescriptor) Definition() chatmodel.ToolDefinition {
	return chatmodel.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.InputSchema,
	}
}

type ToolsListRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

type ToolsListResult struct {
	Tools      []ToolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments chatmodel.Value `json:"arguments"`
}

// EmbeddedResource is the payload of a "resource" content block.
type EmbeddedResource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Content is a block of a tool call result.
type Content struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *EmbeddedResource `json:"resource,omitempty"`
}

type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewContent converts tool output to the wire form.
func NewContent(c chatmodel.Content) Content {
	switch c.Type {
	case chatmodel.ContentTypeText, chatmodel.ContentTypeJSON:
		return Content{Type: "text", Text: c.Text}
	case chatmodel.ContentTypeImage:
		return Content{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(c.Data),
			MimeType: c.MIMEType,
		}
	}
	return Content{
		Type: "resource",
		Resource: &EmbeddedResource{
			URI:      "blob:",
			MimeType: c.MIMEType,
			Blob:     base64.StdEncoding.EncodeToString(c.Data),
		},
	}
}

// ToContent converts a wire block to tool output.
func (c Content) ToContent() chatmodel.Content {
	switch c.Type {
	case "image", "audio":
		data, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return chatmodel.NewTextContent(c.Data)
		}
		return chatmodel.NewBlobContent(data, c.MimeType)
	case "resource":
		if c.Resource == nil {
			return chatmodel.NewTextContent("")
		}
		if c.Resource.Blob == "" {
			return chatmodel.NewTextContent(c.Resource.Text)
		}
		data, err := base64.StdEncoding.DecodeString(c.Resource.Blob)
		if err != nil {
			return chatmodel.NewTextContent(c.Resource.Blob)
		}
		return chatmodel.NewBlobContent(data, c.Resource.MimeType)
	}
	return chatmodel.NewTextContent(c.Text)
}

// Text joins the text blocks of the result.
func (r *ToolCallResult) Text() string {
	var text string
	for i, c := range r.Content {
		if i > 0 {
			text += "\n"
		}
		text += c.ToContent().String()
	}
	return text
}
