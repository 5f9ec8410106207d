package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "proxy.db")
	repo, err := New(WithDatabaseFile(dbFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestServerUpsertGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entity := &ServerEntity{
		ServerID:   "srv-1",
		ServerName: "search-server",
		Enabled:    true,
		Category:   CategoryStdio,
		AuthType:   AuthNone,
		Capabilities: CapabilityConfig{
			Tools: map[string]ItemConfig{"search": {Enabled: true}},
		},
	}
	require.NoError(t, repo.UpsertServer(ctx, entity))

	got, err := repo.GetServer(ctx, "srv-1")
	require.NoError(t, err)
	require.Equal(t, "search-server", got.ServerName)
	require.True(t, got.Capabilities.Tools["search"].Enabled)

	_, err = repo.GetServer(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServerValidateAllowUserInputRequiresTemplate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entity := &ServerEntity{
		ServerID:       "srv-2",
		ServerName:     "templated",
		Category:       CategoryTemplate,
		AllowUserInput: true,
	}
	err := repo.UpsertServer(ctx, entity)
	require.Error(t, err)
}

func TestListEnabledServersFiltersDisabled(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertServer(ctx, &ServerEntity{ServerID: "on", ServerName: "on", Enabled: true, Category: CategoryStdio}))
	require.NoError(t, repo.UpsertServer(ctx, &ServerEntity{ServerID: "off", ServerName: "off", Enabled: false, Category: CategoryStdio}))

	enabled, err := repo.ListEnabledServers(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "on", enabled[0].ServerID)
}

func TestUserUpsertGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := &User{
		UserID: "user-1",
		Role:   "member",
		Status: "active",
		Permissions: PerServerPermissions{
			"srv-1": {Enabled: true, Tools: map[string]ToolPerm{"search": {Enabled: false}}},
		},
	}
	require.NoError(t, repo.UpsertUser(ctx, user))

	got, err := repo.GetUser(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, got.Permissions["srv-1"].Tools["search"].Enabled)
}

func TestUpdateUserLaunchConfigMerges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertUser(ctx, &User{UserID: "user-2"}))

	require.NoError(t, repo.UpdateUserLaunchConfig(ctx, "user-2", "srv-1", []byte("blob-a")))
	require.NoError(t, repo.UpdateUserLaunchConfig(ctx, "user-2", "srv-2", []byte("blob-b")))

	got, err := repo.GetUser(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, []byte("blob-a"), []byte(got.LaunchConfigs["srv-1"]))
	require.Equal(t, []byte("blob-b"), []byte(got.LaunchConfigs["srv-2"]))
}

func TestCapabilityConfigValueScanRoundTrip(t *testing.T) {
	c := CapabilityConfig{Tools: map[string]ItemConfig{"a": {Enabled: true}}}
	v, err := c.Value()
	require.NoError(t, err)

	var out CapabilityConfig
	require.NoError(t, out.Scan(v))
	require.True(t, out.Tools["a"].Enabled)
}

func TestServerEntityCapabilitiesJSONTag(t *testing.T) {
	e := ServerEntity{ServerID: "x", Capabilities: CapabilityConfig{Tools: map[string]ItemConfig{"a": {Enabled: true}}}}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	require.Contains(t, string(b), `"capabilities"`)
}
