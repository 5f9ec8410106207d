package clientsession

import (
	"encoding/json"
	"testing"

	"github.com/mcp-proxy/gateway/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestComposeFiltersOfflineServers(t *testing.T) {
	svc := NewCapabilitiesService()
	view := svc.Compose([]ServerInput{
		{
			Entity:     &store.ServerEntity{ServerID: "srv-1", Enabled: true},
			Online:     false,
			Permission: store.ServerPermission{Enabled: true},
			Preference: store.ServerPermission{Enabled: true},
			LiveTools:  []Item{{Name: "tool"}},
		},
	})
	require.Empty(t, view.Tools)
}

func TestComposeIncludesOnlineAccessibleServer(t *testing.T) {
	svc := NewCapabilitiesService()
	view := svc.Compose([]ServerInput{
		{
			Entity:     &store.ServerEntity{ServerID: "srv-1", Enabled: true},
			Online:     true,
			Permission: store.ServerPermission{Enabled: true},
			Preference: store.ServerPermission{Enabled: true},
			LiveTools:  []Item{{Name: "tool"}},
		},
	})
	require.Len(t, view.Tools, 1)
	require.Equal(t, "tool_-_srv-1", view.Tools[0].PrefixedName)
}

func TestIsCapabilityListChangedIgnoresKeyOrder(t *testing.T) {
	a := json.RawMessage(`{"name":"search","enabled":true}`)
	b := json.RawMessage(`{"enabled":true,"name":"search"}`)
	changed, err := IsCapabilityListChanged(a, b)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestIsCapabilityListChangedDetectsRealDifference(t *testing.T) {
	a := json.RawMessage(`{"name":"search"}`)
	b := json.RawMessage(`{"name":"fetch"}`)
	changed, err := IsCapabilityListChanged(a, b)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestIsCapabilityListChangedHandlesArraysOfObjects(t *testing.T) {
	a := json.RawMessage(`[{"b":1,"a":2},{"c":3}]`)
	b := json.RawMessage(`[{"a":2,"b":1},{"c":3}]`)
	changed, err := IsCapabilityListChanged(a, b)
	require.NoError(t, err)
	require.False(t, changed)
}
