package clientsession

import (
	"encoding/json"
	"testing"

	"github.com/mcp-proxy/gateway/pkg/capabilities"
	"github.com/mcp-proxy/gateway/pkg/store"
	"github.com/stretchr/testify/require"
)

func baseView(serverID string) ServerView {
	return ServerView{
		ServerID: serverID,
		Enabled:  true,
		Online:   true,
		Permission: store.ServerPermission{Enabled: true},
		Preference: store.ServerPermission{Enabled: true},
		LiveTools: []Item{{Name: "search", Raw: json.RawMessage(`{}`)}},
	}
}

func TestAccessibleRequiresEnabledOnlineAndPermission(t *testing.T) {
	v := baseView("srv")
	require.True(t, v.Accessible())

	v.Online = false
	require.False(t, v.Accessible())
}

func TestAccessibleAllowUserInputRequiresOwnership(t *testing.T) {
	v := baseView("srv")
	v.AllowUserInput = true
	v.OwnedByUser = false
	require.False(t, v.Accessible())

	v.OwnedByUser = true
	require.True(t, v.Accessible())
}

func TestAggregateToolsPrefixesNames(t *testing.T) {
	a := &Aggregator{}
	tools := a.AggregateTools([]ServerView{baseView("srv-1")})
	require.Len(t, tools, 1)
	require.Equal(t, "search_-_srv-1", tools[0].PrefixedName)
}

func TestAggregateToolsFiltersDisabledPermission(t *testing.T) {
	v := baseView("srv-1")
	v.Permission.Tools = map[string]store.ToolPerm{"search": {Enabled: false}}
	a := &Aggregator{}
	tools := a.AggregateTools([]ServerView{v})
	require.Empty(t, tools)
}

func TestAggregateToolsDerivesDangerFromDestructiveHint(t *testing.T) {
	v := baseView("srv-1")
	v.LiveTools[0].DestructiveHint = true
	a := &Aggregator{}
	tools := a.AggregateTools([]ServerView{v})
	require.Equal(t, capabilities.DangerNotification, tools[0].Danger)
	require.True(t, tools[0].Annotations.DestructiveHint)
}

func TestAggregateCapabilityFlagsOrsAcrossServers(t *testing.T) {
	a := baseView("a")
	a.ListChanged = true
	b := baseView("b")
	b.ResourceSub = true
	flags := AggregateCapabilityFlags([]ServerView{a, b})
	require.True(t, flags.ListChanged)
	require.True(t, flags.ResourceSub)
}
