package servercontext

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcp-proxy/gateway/pkg/auth"
	"github.com/mcp-proxy/gateway/pkg/log"
)

// refreshFloor and refreshCeiling bound the one-shot refresh timer per
// spec.md §4.2 ("floored at 10s, clamped to the host timer's maximum
// (~24 days)"). time.Timer silently misbehaves above ~292 years on 64-bit
// platforms, but Node/other hosts the spec was distilled from cap timers
// at ~24.8 days (2^31-1 ms); we keep the same ceiling for parity with the
// documented contract rather than relying on Go's much higher limit.
const (
	refreshFloor   = 10 * time.Second
	refreshCeiling = 24 * 24 * time.Hour
	refreshMargin  = 5 * time.Minute
	transientRetry = 3 * time.Minute
)

// Capabilities is the cached tool/resource/prompt metadata for a connected
// server, per spec.md §3.
type Capabilities struct {
	Tools     json.RawMessage
	Resources json.RawMessage
	Prompts   json.RawMessage
}

func (c Capabilities) empty() bool {
	return isEmptyList(c.Tools) && isEmptyList(c.Resources) && isEmptyList(c.Prompts)
}

func isEmptyList(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false
	}
	return len(items) == 0
}

// PersistTokenFunc persists a rotated token snapshot: to the server's
// encrypted launchConfig when allowUserInput is false, or to
// user.launchConfigs[serverId] when true, per spec.md §4.2.
type PersistTokenFunc func(ctx context.Context, serverID string, snapshot auth.OAuthConfigSnapshot) error

// Context is one downstream server's connection state, capability cache,
// and refresh scheduler.
type Context struct {
	ServerID       string
	AllowUserInput bool

	strategy     auth.Strategy
	persist      PersistTokenFunc
	onListChange func(serverID string)

	mu           sync.Mutex
	state        State
	lastErr      error
	capabilities Capabilities

	timerMu sync.Mutex
	timer   *time.Timer
	fatal   bool
}

// New builds a ServerContext in state Offline.
func New(serverID string, allowUserInput bool, strategy auth.Strategy, persist PersistTokenFunc, onListChange func(serverID string)) *Context {
	return &Context{
		ServerID:       serverID,
		AllowUserInput: allowUserInput,
		strategy:       strategy,
		persist:        persist,
		onListChange:   onListChange,
		state:          StateOffline,
	}
}

// State returns the current state under lock.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that drove the last transition to Error.
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Context) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		return &ErrIllegalTransition{From: c.state, To: to}
	}
	c.state = to
	return nil
}

// AddSleepingServer registers the context without opening a transport, per
// spec.md §4.3: "first routed request triggers connection."
func (c *Context) AddSleepingServer() error {
	return c.transition(StateSleeping)
}

// EnsureAvailable connects a sleeping server on demand.
func (c *Context) EnsureAvailable(ctx context.Context, connect func(context.Context) error) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateOnline {
		return nil
	}
	return c.Connect(ctx, connect)
}

// Connect drives Offline/Sleeping/Error -> Connecting -> Online|Error,
// acquires the initial token, and arms the refresh scheduler on success.
func (c *Context) Connect(ctx context.Context, connect func(context.Context) error) error {
	if err := c.transition(StateConnecting); err != nil {
		return err
	}

	if c.strategy != nil {
		tok, err := c.strategy.GetInitialToken(ctx)
		if err != nil {
			c.fail(err)
			return err
		}
		c.scheduleRefresh(tok)
	}

	if err := connect(ctx); err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.state = StateOnline
	c.lastErr = nil
	c.mu.Unlock()
	log.Audit(log.Event{Kind: log.KindServerInit, ServerID: c.ServerID})
	return nil
}

func (c *Context) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()
	log.Audit(log.Event{Kind: log.KindErrorInternal, ServerID: c.ServerID, ResponseError: err.Error()})
}

// Remove tears the context down: cancels the token timer and transitions to
// Offline. Idempotent, per spec.md §4.4.
func (c *Context) Remove() {
	c.cancelTimer()
	c.mu.Lock()
	if c.state == StateOnline || c.state == StateError || c.state == StateConnecting {
		c.state = StateOffline
	}
	c.mu.Unlock()
	log.Audit(log.Event{Kind: log.KindServerClose, ServerID: c.ServerID})
}

// UpdateCapabilities replaces the cached capability lists. If all three
// lists are empty, falls back to toolDefaultConfig per spec.md §4.3.
func (c *Context) UpdateCapabilities(caps Capabilities, toolDefaultConfig json.RawMessage) Capabilities {
	if caps.empty() && len(toolDefaultConfig) > 0 {
		caps.Tools = toolDefaultConfig
	}
	c.mu.Lock()
	c.capabilities = caps
	c.mu.Unlock()
	return caps
}

// Capabilities returns the cached capability lists.
func (c *Context) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// NotifyListChanged is the handler registered against the downstream
// client's tools/resources/prompts listChanged notifications; it triggers
// a relist upstream via the injected callback.
func (c *Context) NotifyListChanged() {
	if c.onListChange != nil {
		c.onListChange(c.ServerID)
	}
}

func (c *Context) scheduleRefresh(tok auth.TokenInfo) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.fatal || c.strategy == nil {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}

	delay := clampRefreshDelay(time.Until(tok.ExpiresAt) - refreshMargin)
	c.timer = time.AfterFunc(delay, c.runRefresh)
}

func clampRefreshDelay(d time.Duration) time.Duration {
	if d < refreshFloor {
		d = refreshFloor
	}
	if d > refreshCeiling {
		d = refreshCeiling
	}
	return d
}

func (c *Context) runRefresh() {
	ctx := context.Background()
	tok, err := c.strategy.RefreshToken(ctx)
	if err != nil {
		if auth.ClassifyError(err) {
			c.timerMu.Lock()
			c.fatal = true
			c.timerMu.Unlock()
			log.Audit(log.Event{Kind: log.KindErrorInternal, ServerID: c.ServerID, ResponseError: fmt.Sprintf("auth refresh fatal: %v", err)})
			return
		}
		c.timerMu.Lock()
		c.timer = time.AfterFunc(transientRetry, c.runRefresh)
		c.timerMu.Unlock()
		return
	}

	if snapshotter, ok := c.strategy.(auth.ConfigSnapshotter); ok {
		if snap, ok := snapshotter.GetCurrentOAuthConfig(); ok && c.persist != nil {
			if perr := c.persist(ctx, c.ServerID, snap); perr == nil {
				snapshotter.MarkConfigAsPersisted()
			}
		}
	}

	c.scheduleRefresh(tok)
}

func (c *Context) cancelTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if closer, ok := c.strategy.(auth.Closer); ok {
		closer.Cleanup()
	}
}
