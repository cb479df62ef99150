package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp/internal/protocol"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/toolagent/mcp/transport/httptransport"
	"github.com/effective-security/toolagent/mcp/transport/stdio"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	// maxListPages bounds tools/list pagination.
	maxListPages = 100
)

var validate = validator.New()

// TransportConfig describes how to reach a tool server.
type TransportConfig struct {
	// Name identifies the server in logs.
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name"`
	// Type is stdio or http.
	Type string `json:"type" yaml:"type" toml:"type" validate:"required,oneof=stdio http"`
	// Command and Args start the stdio server.
	Command string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command" validate:"required_if=Type stdio"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args"`
	// Env is added to the environment of the stdio server, as KEY=VALUE.
	Env []string `json:"env,omitempty" yaml:"env,omitempty" toml:"env"`
	// URL is the endpoint of the http server.
	URL string `json:"url,omitempty" yaml:"url,omitempty" toml:"url" validate:"required_if=Type http"`
	// Headers are sent with every http request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers"`
}

// ConnectError is returned when a connection cannot be established.
// It is not retried.
type ConnectError struct {
	Server string
	Stage  string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcp connect %s: %s: %s", e.Server, e.Stage, e.Err.Error())
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientInfo sets the name and version reported on initialize.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.info = Implementation{Name: name, Version: version}
	}
}

// WithRequestTimeout sets the timeout of each request.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client is a connection to a tool server with the tool list taken at
// connect time. It holds no other state and is safe for concurrent calls.
type Client struct {
	name       string
	transport  transport.Transport
	protocol   *protocol.Protocol
	info       Implementation
	timeout    time.Duration
	serverInfo InitializeResult
	tools      []ToolDescriptor
}

// Connect opens the transport described by cfg, initializes the session and
// lists the tools.
func Connect(ctx context.Context, cfg TransportConfig, opts ...ClientOption) (*Client, error) {
	name := values.StringsCoalesce(cfg.Name, cfg.URL, cfg.Command)
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConnectError{Server: name, Stage: "config", Err: errors.Mark(err, chatmodel.ErrConfiguration)}
	}

	var tr transport.Transport
	switch cfg.Type {
	case TransportStdio:
		st, err := stdio.NewCommand(cfg.Command, cfg.Args, cfg.Env)
		if err != nil {
			return nil, &ConnectError{Server: name, Stage: "start", Err: err}
		}
		tr = st
	case TransportHTTP:
		ht := httptransport.NewHTTPClientTransport(cfg.URL)
		for k, v := range cfg.Headers {
			ht.WithHeader(k, v)
		}
		tr = ht
	}
	return ConnectTransport(ctx, name, tr, opts...)
}

// ConnectTransport initializes a session over tr and lists the tools.
// The transport is closed if the connection fails.
func ConnectTransport(ctx context.Context, name string, tr transport.Transport, opts ...ClientOption) (*Client, error) {
	c := &Client{
		name:      name,
		transport: tr,
		protocol:  protocol.NewProtocol(nil),
		info:      Implementation{Name: "toolagent", Version: "1.0.0"},
		timeout:   protocol.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	fail := func(stage string, err error) (*Client, error) {
		_ = c.protocol.Close()
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "connect_failed",
			"server", name,
			"stage", stage,
			"err", err.Error(),
		)
		return nil, &ConnectError{Server: name, Stage: stage, Err: err}
	}

	if err := c.protocol.Connect(tr); err != nil {
		return fail("start", err)
	}

	err := c.request(ctx, MethodInitialize, InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}, &c.serverInfo)
	if err != nil {
		return fail("initialize", err)
	}
	if err = c.protocol.Notification(MethodInitialized, nil); err != nil {
		return fail("initialize", err)
	}

	cursor := ""
	for page := 0; ; page++ {
		if page == maxListPages {
			return fail("list_tools", errors.Errorf("more than %d pages", maxListPages))
		}
		var res ToolsListResult
		if err = c.request(ctx, MethodToolsList, ToolsListRequest{Cursor: cursor}, &res); err != nil {
			return fail("list_tools", err)
		}
		c.tools = append(c.tools, res.Tools...)
		if res.NextCursor == "" || res.NextCursor == cursor {
			break
		}
		cursor = res.NextCursor
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "connected",
		"server", name,
		"server_name", c.serverInfo.ServerInfo.Name,
		"server_version", c.serverInfo.ServerInfo.Version,
		"protocol_version", c.serverInfo.ProtocolVersion,
		"tools", len(c.tools),
	)
	return c, nil
}

func (c *Client) request(ctx context.Context, method string, params, out any) error {
	started := time.Now()
	defer metricskey.PerfMCPRequest.MeasureSince(started, method)

	raw, err := c.protocol.Request(ctx, method, params, &protocol.RequestOptions{Timeout: c.timeout})
	if err == nil && out != nil {
		if uerr := json.Unmarshal(raw, out); uerr != nil {
			err = errors.Wrapf(uerr, "malformed %s response", method)
		}
	}
	if err != nil {
		metricskey.StatsMCPRequestsFailed.IncrCounter(1, method)
	}
	return err
}

// Name returns the name of the server connection.
func (c *Client) Name() string {
	return c.name
}

// ServerInfo returns the result of initialize.
func (c *Client) ServerInfo() InitializeResult {
	return c.serverInfo
}

// List returns the tool descriptors taken at connect time.
func (c *Client) List() []chatmodel.ToolDefinition {
	defs := make([]chatmodel.ToolDefinition, len(c.tools))
	for i, t := range c.tools {
		defs[i] = t.Definition()
	}
	return defs
}

// Tools returns the remote tools as tools.ITool, to be registered in a
// tools.Registry.
func (c *Client) Tools() []tools.ITool {
	list := make([]tools.ITool, len(c.tools))
	for i, t := range c.tools {
		list[i] = &remoteTool{client: c, desc: t}
	}
	return list
}

// CallTool performs one tools/call round trip.
//
// An invalid-params error from the server is returned as a
// *chatmodel.ToolError with the server's message as the code; an isError
// result is returned as a *chatmodel.ToolError carrying the server's text.
// Timeouts and cancellation are returned as context errors; every other
// failure is marked chatmodel.ErrTransport.
func (c *Client) CallTool(ctx context.Context, name string, args chatmodel.Value) ([]chatmodel.Content, error) {
	var res ToolCallResult
	err := c.request(ctx, MethodToolsCall, ToolCallRequest{Name: name, Arguments: args}, &res)
	if err != nil {
		return nil, c.mapError(err)
	}
	if res.IsError {
		text := res.Text()
		return nil, chatmodel.NewToolError("", text).WithDetail(chatmodel.String(text))
	}

	content := make([]chatmodel.Content, len(res.Content))
	for i, b := range res.Content {
		content[i] = b.ToContent()
	}
	return content, nil
}

func (c *Client) mapError(err error) error {
	var rpcErr *transport.RPCError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &rpcErr) && rpcErr.Code == transport.InvalidParams:
		te := chatmodel.NewToolError(rpcErr.Message, rpcErr.Message)
		if len(rpcErr.Data) > 0 {
			detail, perr := chatmodel.ParseValue(rpcErr.Data)
			if perr == nil {
				te = te.WithDetail(detail)
				if msg, ok := detail.Get("message"); ok {
					if s, ok := msg.AsString(); ok {
						te.Message = s
					}
				}
			}
		}
		return te
	}
	return chatmodel.WrapTransportError(err, "mcp "+c.name)
}

// Call performs one tools/call round trip and returns exactly one result
// correlated with call.
func (c *Client) Call(ctx context.Context, call chatmodel.ToolCall) chatmodel.ToolResult {
	content, err := c.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return chatmodel.NewFailureResult(call.ID, call.Name, err)
	}
	return chatmodel.NewToolResult(call.ID, call.Name, content...)
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.mapError(c.request(ctx, MethodPing, nil, nil))
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.protocol.Close()
}

type remoteTool struct {
	client *Client
	desc   ToolDescriptor
}

func (t *remoteTool) Name() string {
	return t.desc.Name
}

func (t *remoteTool) Description() string {
	return t.desc.Description
}

func (t *remoteTool) Parameters() *jsonschema.Schema {
	return t.desc.InputSchema
}

func (t *remoteTool) Call(ctx context.Context, args chatmodel.Value) ([]chatmodel.Content, error) {
	return t.client.CallTool(ctx, t.desc.Name, args)
}
