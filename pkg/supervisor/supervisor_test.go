package supervisor

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/mcp-proxy/gateway/pkg/servercontext"
	"github.com/mcp-proxy/gateway/pkg/store"
	"github.com/stretchr/testify/require"
)

func connectOK(connectCount *atomic.Int32) Connector {
	return func(ctx context.Context, entity *store.ServerEntity, userToken string) (*servercontext.Context, error) {
		connectCount.Add(1)
		sc := servercontext.New(entity.ServerID, entity.AllowUserInput, nil, nil, nil)
		_ = sc.Connect(ctx, func(context.Context) error { return nil })
		return sc, nil
	}
}

func TestAddServerReusesLiveEntryWithSameConfig(t *testing.T) {
	var count atomic.Int32
	s := New(connectOK(&count), nil, nil)
	entity := &store.ServerEntity{ServerID: "srv-1", LaunchConfig: []byte("cfg-a")}

	first, err := s.AddServer(context.Background(), entity, "tok")
	require.NoError(t, err)
	second, err := s.AddServer(context.Background(), entity, "tok")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, count.Load())
}

func TestAddServerRecreatesOnConfigChange(t *testing.T) {
	var count atomic.Int32
	s := New(connectOK(&count), nil, nil)
	entity := &store.ServerEntity{ServerID: "srv-2", LaunchConfig: []byte("cfg-a")}

	_, err := s.AddServer(context.Background(), entity, "tok")
	require.NoError(t, err)

	entity.LaunchConfig = []byte("cfg-b")
	_, err = s.AddServer(context.Background(), entity, "tok")
	require.NoError(t, err)

	require.EqualValues(t, 2, count.Load())
}

func TestRemoveServerIsIdempotent(t *testing.T) {
	var count atomic.Int32
	s := New(connectOK(&count), nil, nil)
	entity := &store.ServerEntity{ServerID: "srv-3", LaunchConfig: []byte("cfg")}
	_, err := s.AddServer(context.Background(), entity, "tok")
	require.NoError(t, err)

	s.RemoveServer("srv-3")
	s.RemoveServer("srv-3")

	_, ok := s.Get("srv-3")
	require.False(t, ok)
}

func TestConnectAllServersSkipsDisabledAndUserInput(t *testing.T) {
	var count atomic.Int32
	s := New(connectOK(&count), nil, nil)
	entities := []*store.ServerEntity{
		{ServerID: "on", Enabled: true, LaunchConfig: []byte("a")},
		{ServerID: "off", Enabled: false, LaunchConfig: []byte("b")},
		{ServerID: "template", Enabled: true, AllowUserInput: true, LaunchConfig: []byte("c")},
	}
	result := s.ConnectAllServers(context.Background(), entities, "tok")
	require.Equal(t, []string{"on"}, result.SuccessServers)
	require.Empty(t, result.FailedServers)
}

func TestSubscribeResourceIssuesDownstreamOnlyOnce(t *testing.T) {
	var subCalls, unsubCalls atomic.Int32
	s := New(nil, func(ctx context.Context, serverID, uri string) error {
		subCalls.Add(1)
		return nil
	}, func(ctx context.Context, serverID, uri string) error {
		unsubCalls.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.SubscribeResource(ctx, "srv", "file:///a", "sess-1"))
	require.NoError(t, s.SubscribeResource(ctx, "srv", "file:///a", "sess-2"))
	require.EqualValues(t, 1, subCalls.Load())

	require.NoError(t, s.UnsubscribeResource(ctx, "srv", "file:///a", "sess-1"))
	require.EqualValues(t, 0, unsubCalls.Load())

	require.NoError(t, s.UnsubscribeResource(ctx, "srv", "file:///a", "sess-2"))
	require.EqualValues(t, 1, unsubCalls.Load())
}

func TestCleanupSessionSubscriptionsUnsubscribesAll(t *testing.T) {
	var unsubCalls atomic.Int32
	s := New(nil, func(ctx context.Context, serverID, uri string) error { return nil },
		func(ctx context.Context, serverID, uri string) error {
			unsubCalls.Add(1)
			return nil
		})

	ctx := context.Background()
	require.NoError(t, s.SubscribeResource(ctx, "srv-a", "file:///a", "sess"))
	require.NoError(t, s.SubscribeResource(ctx, "srv-b", "file:///b", "sess"))

	s.CleanupSessionSubscriptions(ctx, "sess")
	require.EqualValues(t, 2, unsubCalls.Load())
}
