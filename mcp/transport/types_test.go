package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tcs := []struct {
		name   string
		body   string
		typ    transport.BaseMessageType
		id     transport.RequestId
		method string
	}{
		{"request", `{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}`, transport.BaseMessageTypeJSONRPCRequestType, 7, "tools/list"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, transport.BaseMessageTypeJSONRPCNotificationType, 0, "notifications/initialized"},
		{"response", `{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`, transport.BaseMessageTypeJSONRPCResponseType, 3, ""},
		{"null result", `{"jsonrpc":"2.0","id":4,"result":null}`, transport.BaseMessageTypeJSONRPCResponseType, 4, ""},
		{"error", `{"jsonrpc":"2.0","id":5,"error":{"code":-32602,"message":"bad"}}`, transport.BaseMessageTypeJSONRPCErrorType, 5, ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := transport.ParseMessage([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.typ, msg.Type)
			assert.Equal(t, tc.id, msg.MessageID())
			assert.Equal(t, tc.method, msg.Method())

			raw, err := json.Marshal(msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.body, string(raw))
		})
	}

	for _, bad := range []string{
		`not json`,
		`{"jsonrpc":"1.0","id":1,"method":"x"}`,
		`{"jsonrpc":"2.0"}`,
		`{"jsonrpc":"2.0","id":"abc","method":"x"}`,
	} {
		_, err := transport.ParseMessage([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestRPCError(t *testing.T) {
	e := transport.NewRPCError(transport.InvalidParams, "division_by_zero", map[string]string{"message": "Cannot divide by zero"})
	assert.Equal(t, "RPC error -32602: division_by_zero", e.Error())
	inner := e.Inner()
	assert.Equal(t, -32602, inner.Code)
	assert.JSONEq(t, `{"message":"Cannot divide by zero"}`, string(inner.Data))

	e = transport.NewRPCError(transport.InternalError, "boom", nil)
	assert.Empty(t, e.Data)
}
