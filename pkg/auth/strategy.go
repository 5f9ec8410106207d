// Package auth implements AuthStrategy (C2): polymorphic OAuth/API-key
// token acquisition and refresh for downstream MCP servers. Grounded on the
// teacher's pkg/oauth/provider.go (refresh scheduling shape) generalized
// from a single polling loop into the spec's precise one-shot-timer model.
// The Google strategy exchanges tokens through golang.org/x/oauth2 (as the
// teacher's DCRProvider wraps an *oauth2.Config); the Notion and GitHub
// strategies post to their token endpoints with plain net/http.
package auth

import (
	"context"
	"time"
)

// TokenInfo is the result of acquiring or refreshing a token, per spec.md §4.2.
type TokenInfo struct {
	AccessToken string
	ExpiresIn   time.Duration
	ExpiresAt   time.Time
}

// OAuthConfigSnapshot is what GetCurrentOAuthConfig returns when the last
// refresh rotated persistable state (e.g. a rotated refresh token).
type OAuthConfigSnapshot struct {
	// Raw is the provider-specific config blob to persist back into the
	// server's launchConfig or the user's launchConfigs[serverId].
	Raw []byte
}

// Strategy is the polymorphic provider interface from spec.md §4.2. Only
// GetInitialToken and RefreshToken are mandatory; the rest are optional
// capabilities a concrete provider may or may not support, surfaced via the
// Optional* interfaces below rather than forcing every implementation to
// stub them out (cf. spec.md §9: "interfaces ... Providers are variants of
// AuthStrategy").
type Strategy interface {
	// Name identifies the provider, e.g. "google", "notion", "github".
	Name() string

	// GetInitialToken acquires the first token for a server (e.g. exchanging
	// a stored refresh token, or using a static API key).
	GetInitialToken(ctx context.Context) (TokenInfo, error)

	// RefreshToken acquires a new token ahead of expiry.
	RefreshToken(ctx context.Context) (TokenInfo, error)
}

// ConfigSnapshotter is implemented by strategies whose refresh can rotate
// persistable state (e.g. Notion's rotating refresh tokens).
type ConfigSnapshotter interface {
	// GetCurrentOAuthConfig returns a snapshot to persist, or ok=false if
	// the last refresh did not change anything worth persisting.
	GetCurrentOAuthConfig() (snapshot OAuthConfigSnapshot, ok bool)
	// MarkConfigAsPersisted tells the strategy its snapshot was durably
	// stored, so it won't be offered again until the next rotation.
	MarkConfigAsPersisted()
}

// Closer is implemented by strategies that hold resources needing cleanup
// (e.g. an HTTP client with idle connections) when their ServerContext is
// destroyed.
type Closer interface {
	Cleanup()
}

// ClassifyError buckets a refresh failure into fatal ("auth-class", per
// spec.md §4.2: 401/400 or messages matching Unauthorized/Bad Request) or
// transient. Fatal failures stop the refresh scheduler permanently; after a
// transient failure the refresh is retried 3 minutes later, and again after
// every further transient failure.
func ClassifyError(err error) (fatal bool) {
	if err == nil {
		return false
	}
	return isAuthClassError(err)
}
