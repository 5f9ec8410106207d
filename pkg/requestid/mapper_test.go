package requestid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardCompleteLifecycle(t *testing.T) {
	m := New("sess1")
	require.Equal(t, 0, m.Len())

	proxyID := m.Forward(json.RawMessage(`42`), "server-a", "tools/call")
	require.Equal(t, 1, m.Len())

	entry, ok := m.Resolve(proxyID)
	require.True(t, ok)
	require.Equal(t, "server-a", entry.ServerID)
	require.Equal(t, "tools/call", entry.Method)

	got, ok := m.Complete(proxyID)
	require.True(t, ok)
	require.Equal(t, proxyID, got.ProxyRequestID)
	require.Equal(t, 0, m.Len())

	_, ok = m.Complete(proxyID)
	require.False(t, ok, "completing twice must be a no-op")
}

func TestProxyRequestIDEncodesSession(t *testing.T) {
	m := New("sess-xyz")
	proxyID := m.Forward(json.RawMessage(`1`), "server-a", "resources/read")

	sid, ok := SessionIDFromProxyRequestID(proxyID)
	require.True(t, ok)
	require.Equal(t, "sess-xyz", sid)
}

func TestSessionIDFromProxyRequestIDMissingColon(t *testing.T) {
	_, ok := SessionIDFromProxyRequestID("not-a-valid-id")
	require.False(t, ok)
}

func TestExactlyOneEntryBetweenForwardAndCompletion(t *testing.T) {
	// Property 1 from spec.md §8: exactly one mapping exists between
	// dispatch and completion/cancellation, and none outside that window.
	m := New("s1")
	require.Equal(t, 0, m.Len())
	id := m.Forward(json.RawMessage(`7`), "srv", "tools/call")
	require.Equal(t, 1, m.Len())
	_, ok := m.Complete(id)
	require.True(t, ok)
	require.Equal(t, 0, m.Len())
}
