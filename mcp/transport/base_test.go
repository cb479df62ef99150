package transport_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(base *transport.Base) func(ctx context.Context, msg *transport.BaseJsonRpcMessage) {
	return func(ctx context.Context, msg *transport.BaseJsonRpcMessage) {
		if msg.Type != transport.BaseMessageTypeJSONRPCRequestType {
			return
		}
		req := msg.JsonRpcRequest
		go func() {
			_ = base.Send(ctx, transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{
				Jsonrpc: transport.JSONRPCVersion,
				Id:      req.Id,
				Result:  req.Params,
			}))
		}()
	}
}

func TestBase_HandleMessage(t *testing.T) {
	base := transport.NewBase()
	ctx := context.Background()

	_, err := base.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"echo"}`))
	assert.EqualError(t, err, "transport is not connected")

	base.SetMessageHandler(echoHandler(base))

	// same client id from concurrent callers must not collide
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"method":  "echo",
				"params":  map[string]int{"n": i},
			})
			res, err := base.HandleMessage(ctx, body)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, transport.RequestId(1), res.MessageID())

			var out map[string]int
			require.NoError(t, json.Unmarshal(res.JsonRpcResponse.Result, &out))
			assert.Equal(t, i, out["n"])
		}(i)
	}
	wg.Wait()

	res, err := base.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = base.HandleMessage(ctx, []byte(`garbage`))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, transport.ParseError, res.JsonRpcError.Error.Code)

	err = base.Send(ctx, transport.NewBaseMessageResponse(&transport.BaseJSONRPCResponse{Id: 999}))
	assert.Error(t, err)
}

func TestBase_HandleMessageCancelled(t *testing.T) {
	base := transport.NewBase()
	base.SetMessageHandler(func(context.Context, *transport.BaseJsonRpcMessage) {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := base.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"slow"}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	closed := false
	base.SetCloseHandler(func() { closed = true })
	require.NoError(t, base.Close())
	assert.True(t, closed)
}
