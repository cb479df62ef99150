package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp/internal/protocol"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "mcp")

// DefaultPaginationLimit is the page size of tools/list.
const DefaultPaginationLimit = 50

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the name and version reported on initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions reported on initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPaginationLimit sets the page size of tools/list.
func WithPaginationLimit(limit int) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.paginationLimit = limit
		}
	}
}

// Server exposes the tools of a Registry over a transport.
type Server struct {
	transport       transport.Transport
	protocol        *protocol.Protocol
	registry        *tools.Registry
	info            Implementation
	instructions    string
	paginationLimit int
}

// NewServer returns a server for the tools of registry.
func NewServer(tr transport.Transport, registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		transport:       tr,
		protocol:        protocol.NewProtocol(nil),
		registry:        registry,
		info:            Implementation{Name: "toolagent", Version: "1.0.0"},
		paginationLimit: DefaultPaginationLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve installs the handlers and starts the transport.
func (s *Server) Serve() error {
	s.protocol.SetRequestHandler(MethodInitialize, s.instrument(MethodInitialize, s.handleInitialize))
	s.protocol.SetRequestHandler(MethodPing, s.instrument(MethodPing, s.handlePing))
	s.protocol.SetRequestHandler(MethodToolsList, s.instrument(MethodToolsList, s.handleListTools))
	s.protocol.SetRequestHandler(MethodToolsCall, s.instrument(MethodToolsCall, s.handleToolCalls))
	s.protocol.SetNotificationHandler(MethodInitialized, func(*transport.BaseJSONRPCNotification) error {
		logger.KV(xlog.DEBUG, "status", "client_initialized")
		return nil
	})
	return s.protocol.Connect(s.transport)
}

// Close stops the transport.
func (s *Server) Close() error {
	return s.protocol.Close()
}

func (s *Server) instrument(method string, handler protocol.RequestHandler) protocol.RequestHandler {
	return func(ctx context.Context, req *transport.BaseJSONRPCRequest, extra protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		started := time.Now()
		defer metricskey.PerfMCPRequest.MeasureSince(started, method)

		res, err := handler(ctx, req, extra)
		if err != nil {
			metricskey.StatsMCPRequestsFailed.IncrCounter(1, method)
		}
		return res, err
	}
}

func (s *Server) handleInitialize(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, transport.NewRPCError(transport.InvalidParams, "invalid initialize params", nil)
		}
	}

	version := ProtocolVersion
	if slices.Contains(SupportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(context.Context, *transport.BaseJSONRPCRequest, protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

// handleListTools returns tools sorted by name. The cursor is the base64
// encoded name of the last tool of the previous page.
func (s *Server) handleListTools(_ context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params ToolsListRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, transport.NewRPCError(transport.InvalidParams, "invalid tools/list params", nil)
		}
	}

	list := s.registry.Tools()
	start := 0
	if params.Cursor != "" {
		last, err := base64.StdEncoding.DecodeString(params.Cursor)
		if err != nil {
			return nil, transport.NewRPCError(transport.InvalidParams, "invalid cursor", nil)
		}
		start = len(list)
		for i, t := range list {
			if strings.ToLower(t.Name()) > strings.ToLower(string(last)) {
				start = i
				break
			}
		}
	}

	end := min(start+s.paginationLimit, len(list))
	res := ToolsListResult{
		Tools: make([]ToolDescriptor, 0, end-start),
	}
	for _, t := range list[start:end] {
		res.Tools = append(res.Tools, ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	if end < len(list) {
		res.NextCursor = base64.StdEncoding.EncodeToString([]byte(list[end-1].Name()))
	}
	return res, nil
}

// handleToolCalls executes one tool. A tool reporting a coded error, bad
// arguments or an unknown tool is answered with an invalid-params error;
// any other failure is an isError result.
func (s *Server) handleToolCalls(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params ToolCallRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return nil, transport.NewRPCError(transport.InvalidParams, "invalid tools/call params", nil)
	}

	res := s.registry.Execute(ctx, chatmodel.ToolCall{
		ID:        uuid.NewString(),
		Name:      params.Name,
		Arguments: params.Arguments,
	})

	if f := res.Failure; f != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_failed",
			"tool", params.Name,
			"kind", f.Kind,
			"code", f.Code,
		)
		switch {
		case f.Kind == chatmodel.FailureToolNotFound:
			return nil, transport.NewRPCError(transport.InvalidParams, "unknown_tool",
				map[string]string{"message": "Unknown tool: " + params.Name})
		case f.Code != "":
			var data any = map[string]string{"message": f.Message}
			if !f.Detail.IsNull() {
				data = f.Detail
			}
			return nil, transport.NewRPCError(transport.InvalidParams, f.Code, data)
		case f.Kind == chatmodel.FailureCancelled:
			return nil, errors.WithStack(context.Canceled)
		}
		return ToolCallResult{
			Content: []Content{{Type: "text", Text: f.Message}},
			IsError: true,
		}, nil
	}

	out := ToolCallResult{Content: make([]Content, 0, len(res.Content))}
	for _, c := range res.Content {
		out.Content = append(out.Content, NewContent(c))
	}
	return out, nil
}
