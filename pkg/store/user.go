package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserRepository is the typed repository for User records.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	UpsertUser(ctx context.Context, u *User) error
	UpdateUserLaunchConfig(ctx context.Context, userID, serverID string, launchConfig []byte) error
}

const userColumns = `user_id, role, status, permissions, user_preferences, launch_configs,
	expires_at, rate_limit, created_at, updated_at`

func (r *repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	const q = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &u, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *repository) UpsertUser(ctx context.Context, u *User) error {
	const q = `
		INSERT INTO users (user_id, role, status, permissions, user_preferences, launch_configs,
			expires_at, rate_limit, updated_at)
		VALUES (:user_id, :role, :status, :permissions, :user_preferences, :launch_configs,
			:expires_at, :rate_limit, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			permissions = excluded.permissions,
			user_preferences = excluded.user_preferences,
			launch_configs = excluded.launch_configs,
			expires_at = excluded.expires_at,
			rate_limit = excluded.rate_limit,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.UserID, err)
	}
	return nil
}

func (r *repository) UpdateUserLaunchConfig(ctx context.Context, userID, serverID string, launchConfig []byte) error {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.LaunchConfigs == nil {
		u.LaunchConfigs = LaunchConfigs{}
	}
	u.LaunchConfigs[serverID] = launchConfig
	return r.UpsertUser(ctx, u)
}
