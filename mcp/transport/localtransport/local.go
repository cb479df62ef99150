// Package localtransport connects an MCP client and server in-process,
// or through any proxy that can forward a request body and headers.
package localtransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mcp/transport"
)

type McpProxyRequest struct {
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type McpProxyResponse struct {
	Type    transport.BaseMessageType `json:"type"`
	Status  int                       `json:"status"`
	Body    []byte                    `json:"body"`
	Headers map[string]string         `json:"headers"`
}

// Handler is an interface for handling MCP requests using local transport or proxy
type Handler interface {
	HandleMCP(ctx context.Context, req *McpProxyRequest) (*McpProxyResponse, error)
}

// Transport is the server side of the local transport.
type Transport struct {
	*transport.Base
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ Handler             = (*Transport)(nil)
)

func New() *Transport {
	return &Transport{Base: transport.NewBase()}
}

// HandleMCP processes one proxied message. Notifications are answered with
// http.StatusAccepted and an empty body.
func (s *Transport) HandleMCP(ctx context.Context, req *McpProxyRequest) (*McpProxyResponse, error) {
	res, err := s.HandleMessage(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &McpProxyResponse{Status: http.StatusAccepted}, nil
	}
	body, err := json.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response")
	}
	return &McpProxyResponse{
		Type:    res.Type,
		Status:  http.StatusOK,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}, nil
}
