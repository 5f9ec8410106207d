package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Proxy bookmarks external log shipping, per spec.md §6.3
// ("Proxy.lastSyncedLogId bookmarks external log shipping"). Log shipping
// itself is out of scope (spec.md §1); the core only needs to read/advance
// the bookmark.
type Proxy struct {
	ProxyID         string `db:"proxy_id" json:"proxyId"`
	Name            string `db:"name" json:"name"`
	LastSyncedLogID int64  `db:"last_synced_log_id" json:"lastSyncedLogId"`
}

// ProxyRepository is the typed repository for Proxy bookmarks.
type ProxyRepository interface {
	GetProxy(ctx context.Context, proxyID string) (*Proxy, error)
	AdvanceLastSyncedLogID(ctx context.Context, proxyID string, logID int64) error
}

func (r *repository) GetProxy(ctx context.Context, proxyID string) (*Proxy, error) {
	var p Proxy
	const q = `SELECT proxy_id, name, last_synced_log_id FROM proxies WHERE proxy_id = $1`
	if err := r.db.GetContext(ctx, &p, q, proxyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get proxy %s: %w", proxyID, err)
	}
	return &p, nil
}

func (r *repository) AdvanceLastSyncedLogID(ctx context.Context, proxyID string, logID int64) error {
	const q = `UPDATE proxies SET last_synced_log_id = $1, updated_at = CURRENT_TIMESTAMP WHERE proxy_id = $2`
	res, err := r.db.ExecContext(ctx, q, logID, proxyID)
	if err != nil {
		return fmt.Errorf("store: advance last synced log id for %s: %w", proxyID, err)
	}
	return requireRowsAffected(res, proxyID)
}
