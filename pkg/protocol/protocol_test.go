package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageKindDetection(t *testing.T) {
	req := Message{JSONRPC: JSONRPCVersion, ID: json.RawMessage(`1`), Method: "tools/call"}
	require.True(t, req.IsRequest())
	require.False(t, req.IsNotification())
	require.False(t, req.IsResponse())

	notif := Message{JSONRPC: JSONRPCVersion, Method: "notifications/cancelled"}
	require.True(t, notif.IsNotification())
	require.False(t, notif.IsRequest())

	resp := Message{JSONRPC: JSONRPCVersion, ID: json.RawMessage(`1`), Result: json.RawMessage(`{}`)}
	require.True(t, resp.IsResponse())
	require.False(t, resp.IsRequest())
}

func TestMetaRoundTripsProxyContext(t *testing.T) {
	in := Meta{
		ProxyContext: &ProxyContext{ProxyRequestID: "sess1:17:abc", UniformRequestID: "u-1"},
		Rest:         map[string]any{"progressToken": "tok-1"},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Meta
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "sess1:17:abc", out.ProxyContext.ProxyRequestID)
	require.Equal(t, "tok-1", out.Rest["progressToken"])
}

func TestErrorImplementsError(t *testing.T) {
	var err error = NewError(MethodNotFound, "unknown tool")
	require.EqualError(t, err, "unknown tool")
}
