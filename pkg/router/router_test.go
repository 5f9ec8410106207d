package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSession struct{ id string }

func (f fakeSession) SessionID() string { return f.id }

func TestRegisterLookupUnregister(t *testing.T) {
	r := New()
	sess := fakeSession{id: "sess-1"}
	r.Register("srv-1", "sess-1:1", sess)

	got, ok := r.Lookup("srv-1", "sess-1:1")
	require.True(t, ok)
	require.Equal(t, sess, got)

	r.Unregister("srv-1", "sess-1:1")
	_, ok = r.Lookup("srv-1", "sess-1:1")
	require.False(t, ok)
}

func TestRemoveSessionDropsAllItsEntries(t *testing.T) {
	r := New()
	sessA := fakeSession{id: "sess-a"}
	sessB := fakeSession{id: "sess-b"}
	r.Register("srv-1", "sess-a:1", sessA)
	r.Register("srv-2", "sess-a:2", sessA)
	r.Register("srv-1", "sess-b:1", sessB)

	r.RemoveSession("sess-a")

	_, ok := r.Lookup("srv-1", "sess-a:1")
	require.False(t, ok)
	_, ok = r.Lookup("srv-2", "sess-a:2")
	require.False(t, ok)
	_, ok = r.Lookup("srv-1", "sess-b:1")
	require.True(t, ok)
}
