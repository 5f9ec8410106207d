package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ServerRepository is the typed repository for ServerEntity records.
type ServerRepository interface {
	GetServer(ctx context.Context, serverID string) (*ServerEntity, error)
	ListServers(ctx context.Context) ([]ServerEntity, error)
	ListEnabledServers(ctx context.Context) ([]ServerEntity, error)
	UpsertServer(ctx context.Context, e *ServerEntity) error
	UpdateServerCapabilities(ctx context.Context, serverID string, caps CapabilityConfig) error
	UpdateServerLaunchConfig(ctx context.Context, serverID string, launchConfig []byte) error
	DeleteServer(ctx context.Context, serverID string) error
}

const serverColumns = `server_id, server_name, enabled, category, auth_type, launch_config,
	config_template, capabilities, allow_user_input, lazy_start_enabled, public_access,
	proxy_id, created_at, updated_at`

func (r *repository) GetServer(ctx context.Context, serverID string) (*ServerEntity, error) {
	var e ServerEntity
	const q = `SELECT ` + serverColumns + ` FROM servers WHERE server_id = $1`
	if err := r.db.GetContext(ctx, &e, q, serverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get server %s: %w", serverID, err)
	}
	return &e, nil
}

func (r *repository) ListServers(ctx context.Context) ([]ServerEntity, error) {
	var out []ServerEntity
	const q = `SELECT ` + serverColumns + ` FROM servers ORDER BY server_id`
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("store: list servers: %w", err)
	}
	return out, nil
}

func (r *repository) ListEnabledServers(ctx context.Context) ([]ServerEntity, error) {
	var out []ServerEntity
	const q = `SELECT ` + serverColumns + ` FROM servers WHERE enabled = 1 ORDER BY server_id`
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("store: list enabled servers: %w", err)
	}
	return out, nil
}

func (r *repository) UpsertServer(ctx context.Context, e *ServerEntity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO servers (server_id, server_name, enabled, category, auth_type, launch_config,
			config_template, capabilities, allow_user_input, lazy_start_enabled, public_access, proxy_id,
			updated_at)
		VALUES (:server_id, :server_name, :enabled, :category, :auth_type, :launch_config,
			:config_template, :capabilities, :allow_user_input, :lazy_start_enabled, :public_access, :proxy_id,
			CURRENT_TIMESTAMP)
		ON CONFLICT(server_id) DO UPDATE SET
			server_name = excluded.server_name,
			enabled = excluded.enabled,
			category = excluded.category,
			auth_type = excluded.auth_type,
			launch_config = excluded.launch_config,
			config_template = excluded.config_template,
			capabilities = excluded.capabilities,
			allow_user_input = excluded.allow_user_input,
			lazy_start_enabled = excluded.lazy_start_enabled,
			public_access = excluded.public_access,
			proxy_id = excluded.proxy_id,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("store: upsert server %s: %w", e.ServerID, err)
	}
	return nil
}

func (r *repository) UpdateServerCapabilities(ctx context.Context, serverID string, caps CapabilityConfig) error {
	const q = `UPDATE servers SET capabilities = $1, updated_at = CURRENT_TIMESTAMP WHERE server_id = $2`
	res, err := r.db.ExecContext(ctx, q, caps, serverID)
	if err != nil {
		return fmt.Errorf("store: update server capabilities %s: %w", serverID, err)
	}
	return requireRowsAffected(res, serverID)
}

func (r *repository) UpdateServerLaunchConfig(ctx context.Context, serverID string, launchConfig []byte) error {
	const q = `UPDATE servers SET launch_config = $1, updated_at = CURRENT_TIMESTAMP WHERE server_id = $2`
	res, err := r.db.ExecContext(ctx, q, launchConfig, serverID)
	if err != nil {
		return fmt.Errorf("store: update server launch config %s: %w", serverID, err)
	}
	return requireRowsAffected(res, serverID)
}

func (r *repository) DeleteServer(ctx context.Context, serverID string) error {
	const q = `DELETE FROM servers WHERE server_id = $1`
	if _, err := r.db.ExecContext(ctx, q, serverID); err != nil {
		return fmt.Errorf("store: delete server %s: %w", serverID, err)
	}
	return nil
}

func requireRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
