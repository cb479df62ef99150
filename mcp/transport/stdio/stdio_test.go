package stdio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTransport_ReadWrite(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"result":{}}`,
	}, "\n")

	out := &syncBuffer{}
	tr := New(strings.NewReader(input), out)

	var mu sync.Mutex
	var got []*transport.BaseJsonRpcMessage
	var errs []error
	closed := make(chan struct{})

	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})
	tr.SetErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	tr.SetCloseHandler(func() { close(closed) })

	require.NoError(t, tr.Start(context.Background()))
	assert.Error(t, tr.Start(context.Background()))

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close handler was not called on EOF")
	}
	<-tr.Done()

	mu.Lock()
	require.Len(t, got, 3)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCRequestType, got[0].Type)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCNotificationType, got[1].Type)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, got[2].Type)
	assert.Len(t, errs, 1)
	mu.Unlock()

	err := tr.Send(context.Background(), transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
		Jsonrpc: transport.JSONRPCVersion,
		Id:      1,
		Result:  []byte(`{"tools":[]}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`+"\n", out.String())

	require.NoError(t, tr.Close())
	err = tr.Send(context.Background(), transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{Method: "x"}))
	assert.EqualError(t, err, "transport is closed")
}

func TestTransport_LongLine(t *testing.T) {
	long := strings.Repeat("a", 200*1024)
	input := `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"s":"` + long + `"}}` + "\n"

	got := make(chan *transport.BaseJsonRpcMessage, 1)
	tr := New(strings.NewReader(input), io.Discard)
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		got <- msg
	})
	require.NoError(t, tr.Start(context.Background()))

	select {
	case msg := <-got:
		assert.Equal(t, "echo", msg.Method())
		assert.Greater(t, len(msg.JsonRpcRequest.Params), len(long))
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched")
	}
}

func TestNewCommand_NotFound(t *testing.T) {
	_, err := NewCommand("/nonexistent/toolserver", nil, nil)
	assert.Error(t, err)
}
