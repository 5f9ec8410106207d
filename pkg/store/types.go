// Package store holds the persisted data model from spec.md §3 and §6.3:
// ServerEntity and User, plus the typed repository interfaces the core
// treats as an opaque store. Grounded on the teacher's pkg/db/catalog.go
// JSON-blob-column pattern (small wrapper types implementing
// database/sql/driver.Valuer and sql.Scanner) and on db.go's
// golang-migrate + modernc.org/sqlite + jmoiron/sqlx wiring.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ServerCategory enumerates how a downstream server is launched.
type ServerCategory string

const (
	CategoryStdio        ServerCategory = "Stdio"
	CategoryRestAPI       ServerCategory = "RestApi"
	CategoryCustomRemote ServerCategory = "CustomRemote"
	CategoryTemplate     ServerCategory = "Template"
)

// AuthType enumerates the OAuth/API-key strategy a server is configured
// with, per spec.md §3.
type AuthType string

const (
	AuthNone   AuthType = "None"
	AuthAPIKey AuthType = "ApiKey"
	AuthGoogle AuthType = "GoogleAuth"
	AuthNotion AuthType = "NotionAuth"
	AuthGitHub AuthType = "GitHubAuth"
)

// CapabilityConfig is the cached tool/resource/prompt metadata with
// per-item enabled flags and an optional legacy default-config fallback
// (spec.md §9 open question: "toolDefaultConfig ... absent ⇒ no fallback").
type CapabilityConfig struct {
	Tools             map[string]ItemConfig `json:"tools,omitempty"`
	Resources         map[string]ItemConfig `json:"resources,omitempty"`
	Prompts           map[string]ItemConfig `json:"prompts,omitempty"`
	ToolDefaultConfig json.RawMessage       `json:"toolDefaultConfig,omitempty"`
}

// ItemConfig is the per-capability-item override stored on a server or a
// user record: enabled flag plus an optional danger level for tools.
type ItemConfig struct {
	Enabled     bool    `json:"enabled"`
	DangerLevel *string `json:"dangerLevel,omitempty"`
}

// marshalColumn is the Value helper for wrapper types that marshal through
// a JSON blob column, following pkg/db/catalog.go's ToolList Value/Scan pattern.
func marshalColumn(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalColumn(value any, out any) error {
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), out)
	case []byte:
		return json.Unmarshal(v, out)
	case nil:
		return nil
	default:
		return fmt.Errorf("store: unsupported column type %T", value)
	}
}

// CapabilityConfig implements driver.Valuer/sql.Scanner for sqlx.
func (c CapabilityConfig) Value() (driver.Value, error) { return marshalColumn(c) }
func (c *CapabilityConfig) Scan(value any) error         { return unmarshalColumn(value, c) }

// PerServerPermissions is the per-server permission/preference overlay
// shape shared by User.Permissions and User.Preferences, per spec.md §3.
type PerServerPermissions map[string]ServerPermission

type ServerPermission struct {
	Enabled   bool                  `json:"enabled"`
	Tools     map[string]ToolPerm   `json:"tools,omitempty"`
	Resources map[string]ItemConfig `json:"resources,omitempty"`
	Prompts   map[string]ItemConfig `json:"prompts,omitempty"`
}

type ToolPerm struct {
	Enabled     bool    `json:"enabled"`
	DangerLevel *string `json:"dangerLevel,omitempty"`
}

func (p PerServerPermissions) Value() (driver.Value, error) { return marshalColumn(p) }
func (p *PerServerPermissions) Scan(value any) error         { return unmarshalColumn(value, p) }

// LaunchConfigs maps serverId to an encrypted per-user launch config blob.
type LaunchConfigs map[string][]byte

func (l LaunchConfigs) Value() (driver.Value, error) { return marshalColumn(l) }
func (l *LaunchConfigs) Scan(value any) error         { return unmarshalColumn(value, l) }

// ServerEntity is the persisted server record from spec.md §3.
type ServerEntity struct {
	ServerID         string           `db:"server_id" json:"serverId"`
	ServerName       string           `db:"server_name" json:"serverName"`
	Enabled          bool             `db:"enabled" json:"enabled"`
	Category         ServerCategory   `db:"category" json:"category"`
	AuthType         AuthType         `db:"auth_type" json:"authType"`
	LaunchConfig     []byte           `db:"launch_config" json:"-"`
	ConfigTemplate   json.RawMessage  `db:"config_template" json:"configTemplate,omitempty"`
	Capabilities     CapabilityConfig `db:"capabilities" json:"capabilities"`
	AllowUserInput   bool             `db:"allow_user_input" json:"allowUserInput"`
	LazyStartEnabled bool             `db:"lazy_start_enabled" json:"lazyStartEnabled"`
	PublicAccess     bool             `db:"public_access" json:"publicAccess"`
	ProxyID          string           `db:"proxy_id" json:"proxyId"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// Validate enforces the invariant from spec.md §3: allowUserInput=true
// requires a non-empty configTemplate.
func (e *ServerEntity) Validate() error {
	if e.AllowUserInput && len(e.ConfigTemplate) == 0 {
		return errors.New("store: allowUserInput requires a non-empty configTemplate")
	}
	return nil
}

// IsRemoteOAuthServer reports whether this server authenticates via one of
// the OAuth-class providers (as opposed to none/api-key).
func (e *ServerEntity) IsRemoteOAuthServer() bool {
	switch e.AuthType {
	case AuthGoogle, AuthNotion, AuthGitHub:
		return true
	default:
		return false
	}
}

// User is the persisted user record from spec.md §3.
type User struct {
	UserID          string               `db:"user_id" json:"userId"`
	Role            string               `db:"role" json:"role"`
	Status          string               `db:"status" json:"status"`
	Permissions     PerServerPermissions `db:"permissions" json:"permissions"`
	UserPreferences PerServerPermissions `db:"user_preferences" json:"userPreferences"`
	LaunchConfigs   LaunchConfigs        `db:"launch_configs" json:"-"`
	ExpiresAt       time.Time            `db:"expires_at" json:"expiresAt"`
	RateLimit       int                  `db:"rate_limit" json:"ratelimit"`
	CreatedAt       time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updatedAt"`
}
