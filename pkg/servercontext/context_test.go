package servercontext

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcp-proxy/gateway/pkg/auth"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	token    auth.TokenInfo
	err      error
	initials int
}

func (f *fakeStrategy) Name() string { return "fake" }
func (f *fakeStrategy) GetInitialToken(context.Context) (auth.TokenInfo, error) {
	f.initials++
	return f.token, f.err
}
func (f *fakeStrategy) RefreshToken(context.Context) (auth.TokenInfo, error) {
	return f.token, f.err
}

func TestConnectTransitionsOfflineToOnline(t *testing.T) {
	c := New("srv-1", false, &fakeStrategy{token: auth.TokenInfo{ExpiresAt: time.Now().Add(time.Hour)}}, nil, nil)
	err := c.Connect(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateOnline, c.State())
}

func TestConnectFailureGoesToError(t *testing.T) {
	c := New("srv-2", false, nil, nil, nil)
	err := c.Connect(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, StateError, c.State())
}

func TestAddSleepingServerThenEnsureAvailable(t *testing.T) {
	c := New("srv-3", false, nil, nil, nil)
	require.NoError(t, c.AddSleepingServer())
	require.Equal(t, StateSleeping, c.State())

	called := false
	err := c.EnsureAvailable(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, StateOnline, c.State())
}

func TestIllegalTransitionRejected(t *testing.T) {
	c := New("srv-4", false, nil, nil, nil)
	require.NoError(t, c.transition(StateConnecting))
	err := c.transition(StateSleeping)
	require.Error(t, err)
}

func TestUpdateCapabilitiesFallsBackToToolDefaultConfig(t *testing.T) {
	c := New("srv-5", false, nil, nil, nil)
	fallback := json.RawMessage(`[{"name":"default-tool"}]`)
	got := c.UpdateCapabilities(Capabilities{}, fallback)
	require.JSONEq(t, string(fallback), string(got.Tools))
}

func TestUpdateCapabilitiesKeepsNonEmptyLists(t *testing.T) {
	c := New("srv-6", false, nil, nil, nil)
	tools := json.RawMessage(`[{"name":"real-tool"}]`)
	got := c.UpdateCapabilities(Capabilities{Tools: tools}, json.RawMessage(`[{"name":"fallback"}]`))
	require.JSONEq(t, string(tools), string(got.Tools))
}

func TestClampRefreshDelayFloorAndCeiling(t *testing.T) {
	require.Equal(t, refreshFloor, clampRefreshDelay(time.Second))
	require.Equal(t, refreshCeiling, clampRefreshDelay(1000*24*time.Hour))
	require.Equal(t, time.Minute, clampRefreshDelay(time.Minute))
}

func TestNotifyListChangedInvokesCallback(t *testing.T) {
	called := ""
	c := New("srv-7", false, nil, nil, func(serverID string) { called = serverID })
	c.NotifyListChanged()
	require.Equal(t, "srv-7", called)
}
