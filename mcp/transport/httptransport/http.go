// Package httptransport implements the streamable HTTP transport for MCP:
// a server http.Handler that answers each POSTed message, and a client that
// POSTs messages and reads JSON or event-stream responses.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/mcp/transport", "httptransport")

const (
	// SessionHeader carries the session id assigned on initialize.
	SessionHeader = "Mcp-Session-Id"

	maxBodySize = 10 * 1024 * 1024
)

// HTTPTransport implements a stateless HTTP server transport for MCP
type HTTPTransport struct {
	*transport.Base

	server   *http.Server
	listener net.Listener
	endpoint string
	addr     string
	mu       sync.Mutex
}

var (
	_ transport.Transport = (*HTTPTransport)(nil)
	_ http.Handler        = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTP transport that serves the specified endpoint
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		Base:     transport.NewBase(),
		endpoint: endpoint,
		addr:     ":8080",
	}
}

// WithAddr sets the address to listen on. An empty address disables the
// listener, in which case the transport is mounted as an http.Handler.
func (t *HTTPTransport) WithAddr(addr string) *HTTPTransport {
	t.addr = addr
	return t
}

// Addr returns the listening address once started.
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// Start listens on the configured address and serves in the background.
func (t *HTTPTransport) Start(ctx context.Context) error {
	if t.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", t.addr)
	}

	mux := http.NewServeMux()
	mux.Handle(t.endpoint, t)

	t.mu.Lock()
	t.listener = ln
	t.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := t.server
	t.mu.Unlock()

	logger.KV(xlog.INFO, "status", "listening", "addr", ln.Addr().String(), "endpoint", t.endpoint)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.ReportError(errors.Wrap(err, "server failed"))
		}
	}()
	return nil
}

// Close implements Transport.Close
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	srv := t.server
	t.server = nil
	t.mu.Unlock()

	if srv != nil {
		if err := srv.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return t.Base.Close()
}

// ServeHTTP answers a single POSTed JSON-RPC message.
func (t *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		t.ReportError(errors.Wrap(err, "failed to read request body"))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	response, err := t.HandleMessage(ctx, body)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "status", "handle_message", "err", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		t.ReportError(errors.Wrap(err, "failed to marshal response"))
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" && isInitialize(body) {
		sessionID = uuid.NewString()
	}
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonData)
}

func isInitialize(body []byte) bool {
	var probe struct {
		Method string `json:"method"`
	}
	return json.Unmarshal(body, &probe) == nil && probe.Method == "initialize"
}
