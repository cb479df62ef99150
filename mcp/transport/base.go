package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/mcp", "transport")

// Base implements the request/response correlation shared by the
// stateless server transports (HTTP and in-process). Each incoming request
// is given a process-unique id so that concurrent callers using the same id
// never collide, and the caller's id is restored on the response.
type Base struct {
	messageHandler func(ctx context.Context, message *BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[RequestId]chan *BaseJsonRpcMessage
	atomicCounter  int64
}

func NewBase() *Base {
	return &Base{
		responseMap: make(map[RequestId]chan *BaseJsonRpcMessage),
	}
}

// Start does nothing for the stateless transports.
func (t *Base) Start(ctx context.Context) error {
	return nil
}

// Send delivers a response to the HandleMessage call waiting for it.
// Notifications have no waiting caller and are dropped.
func (t *Base) Send(ctx context.Context, message *BaseJsonRpcMessage) error {
	if message.Type == BaseMessageTypeJSONRPCNotificationType {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "notification_dropped",
			"method", message.Method(),
		)
		return nil
	}
	key := message.MessageID()

	t.mu.RLock()
	ch := t.responseMap[key]
	t.mu.RUnlock()

	if ch == nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"type", message.Type,
			"key", key,
			"err", "no response channel found",
		)
		return errors.Errorf("no response channel found for key: %d", key)
	}
	select {
	case ch <- message:
	default:
		return errors.Errorf("response already sent for key: %d", key)
	}
	return nil
}

// Close invokes the close handler.
func (t *Base) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Base) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Base) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Base) SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// ReportError passes err to the error handler, if any.
func (t *Base) ReportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// HandleMessage processes an incoming message. For a request it blocks until
// the response is sent or ctx is done; for anything else it returns nil.
func (t *Base) HandleMessage(ctx context.Context, body []byte) (*BaseJsonRpcMessage, error) {
	msg, err := ParseMessage(body)
	if err != nil {
		return NewBaseMessageError(&BaseJSONRPCError{
			Jsonrpc: JSONRPCVersion,
			Error: BaseJSONRPCErrorInner{
				Code:    ParseError,
				Message: err.Error(),
			},
		}), nil
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler == nil {
		return nil, errors.New("transport is not connected")
	}

	if msg.Type != BaseMessageTypeJSONRPCRequestType {
		handler(ctx, msg)
		return nil, nil
	}

	prevID := msg.MessageID()
	key := RequestId(atomic.AddInt64(&t.atomicCounter, 1))
	ch := make(chan *BaseJsonRpcMessage, 1)

	t.mu.Lock()
	t.responseMap[key] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.responseMap, key)
		t.mu.Unlock()
	}()

	msg.SetMessageID(key)
	handler(ctx, msg)

	select {
	case res := <-ch:
		res.SetMessageID(prevID)
		return res, nil
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
}
