package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/xlog"
)

// HTTPClientTransport implements a client-side HTTP transport for MCP.
// Each message is POSTed; the response is either a single JSON message or
// an event stream of messages.
type HTTPClientTransport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	client         *http.Client
	baseURL        string
	headers        map[string]string
	sessionID      string
	closed         bool
}

var _ transport.Transport = (*HTTPClientTransport)(nil)

// NewHTTPClientTransport creates a new HTTP client transport for the endpoint URL.
func NewHTTPClientTransport(baseURL string) *HTTPClientTransport {
	return &HTTPClientTransport{
		client:  http.DefaultClient,
		baseURL: baseURL,
		headers: make(map[string]string),
	}
}

// WithHeader adds a header to every request
func (t *HTTPClientTransport) WithHeader(key, value string) *HTTPClientTransport {
	t.headers[key] = value
	return t
}

// WithClient sets the HTTP client
func (t *HTTPClientTransport) WithClient(client *http.Client) *HTTPClientTransport {
	t.client = client
	return t
}

// SessionID returns the session id assigned by the server, if any.
func (t *HTTPClientTransport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Start implements Transport.Start
func (t *HTTPClientTransport) Start(ctx context.Context) error {
	return nil
}

// Send implements Transport.Send
func (t *HTTPClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.RLock()
	closed := t.closed
	sessionID := t.sessionID
	t.mu.RUnlock()
	if closed {
		return errors.New("transport is closed")
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(SessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("server returned error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return t.readEvents(ctx, resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return t.deliver(ctx, body)
}

// readEvents delivers each "data:" event of the stream as a message.
func (t *HTTPClientTransport) readEvents(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxBodySize)

	var data bytes.Buffer
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		return t.deliver(ctx, data.Bytes())
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read event stream")
	}
	return flush()
}

func (t *HTTPClientTransport) deliver(ctx context.Context, body []byte) error {
	msg, err := transport.ParseMessage(body)
	if err != nil {
		return errors.Wrap(err, "received invalid response")
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(ctx, msg)
	} else {
		logger.ContextKV(ctx, xlog.DEBUG, "status", "message_dropped", "type", msg.Type)
	}
	return nil
}

// Close implements Transport.Close
func (t *HTTPClientTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *HTTPClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *HTTPClientTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *HTTPClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
