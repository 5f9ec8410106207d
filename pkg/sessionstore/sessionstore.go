// Package sessionstore implements SessionStore (C9): the registry mapping
// sessionId to session state, userId to that user's sessions, and
// sessionId to its EventStore, plus the idle/expiry sweep. Grounded on the
// teacher's Gateway.sessionCache map+mutex pattern, generalized from a
// single flat map into the spec's three indices plus a sweep ticker.
package sessionstore

import (
	"sync"
	"time"

	"github.com/mcp-proxy/gateway/pkg/eventstore"
	"github.com/mcp-proxy/gateway/pkg/log"
)

// Session is the subset of per-client-connection state the store indexes
// and sweeps; the richer ProxySession (C7) embeds or references one.
type Session struct {
	ID            string
	UserID        string
	ExpiresAt     time.Time
	LastActivity  time.Time
	EventStore    *eventstore.Store
}

// idle reports whether this session has been inactive longer than timeout.
func (s *Session) idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActivity) > timeout
}

// expired reports whether the session's auth context has expired.
func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// RemoveHooks are called when a session is removed, so collaborators (the
// subscription engine, the router, temporary servers) can clean up without
// this package importing them directly.
type RemoveHooks struct {
	CleanupSubscriptions func(sessionID string)
	RemoveRouting        func(sessionID string)
	// CloseUserTemporaryServers is invoked only when the removed session was
	// the user's last one.
	CloseUserTemporaryServers func(userID string)
	StartUserTemporaryServers func(userID string)
}

// Store is SessionStore (C9).
type Store struct {
	idleTimeout time.Duration
	hooks       RemoveHooks

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]bool

	stopSweep chan struct{}
}

// New builds a Store. idleTimeout of zero disables idle eviction (only
// expiresAt is then enforced).
func New(idleTimeout time.Duration, hooks RemoveHooks) *Store {
	return &Store{
		idleTimeout: idleTimeout,
		hooks:       hooks,
		sessions:    make(map[string]*Session),
		byUser:      make(map[string]map[string]bool),
	}
}

// Create allocates a session, binds the user-level index, attaches an
// EventStore, logs SessionInit, and — on the user's first connection —
// starts their temporary servers, per spec.md §4.7.
func (s *Store) Create(sessionID, userID string, expiresAt time.Time) *Session {
	sess := &Session{
		ID:           sessionID,
		UserID:       userID,
		ExpiresAt:    expiresAt,
		LastActivity: time.Now(),
		EventStore:   eventstore.New(sessionID),
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	set, ok := s.byUser[userID]
	isFirst := !ok || len(set) == 0
	if !ok {
		set = make(map[string]bool)
		s.byUser[userID] = set
	}
	set[sessionID] = true
	s.mu.Unlock()

	log.Audit(log.Event{Kind: log.KindSessionInit, SessionID: sessionID})

	if isFirst && s.hooks.StartUserTemporaryServers != nil {
		s.hooks.StartUserTemporaryServers(userID)
	}
	return sess
}

// Get looks up a session by ID.
func (s *Store) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Touch refreshes a session's last-activity timestamp.
func (s *Store) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.LastActivity = time.Now()
	}
}

// Remove closes a session: cleans its EventStore, unsubscribes all its
// subscriptions, removes routing state, logs SessionClose, and — if it was
// the user's last session — closes their temporary servers.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sessionID)
	var lastForUser bool
	if set, ok := s.byUser[sess.UserID]; ok {
		delete(set, sessionID)
		lastForUser = len(set) == 0
		if lastForUser {
			delete(s.byUser, sess.UserID)
		}
	}
	s.mu.Unlock()

	if s.hooks.CleanupSubscriptions != nil {
		s.hooks.CleanupSubscriptions(sessionID)
	}
	if s.hooks.RemoveRouting != nil {
		s.hooks.RemoveRouting(sessionID)
	}
	log.Audit(log.Event{Kind: log.KindSessionClose, SessionID: sessionID})

	if lastForUser && s.hooks.CloseUserTemporaryServers != nil {
		s.hooks.CloseUserTemporaryServers(sess.UserID)
	}
}

// SessionsForUser lists the active sessions owned by a user.
func (s *Store) SessionsForUser(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// StartSweep runs the 5-minute expiry/idle sweep described in spec.md §4.7
// until stopped. Call Stop to terminate it.
func (s *Store) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.stopSweep = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepOnce()
			case <-s.stopSweep:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine started by StartSweep.
func (s *Store) Stop() {
	if s.stopSweep != nil {
		close(s.stopSweep)
	}
}

func (s *Store) sweepOnce() {
	now := time.Now()
	s.mu.RLock()
	var toRemove []string
	for id, sess := range s.sessions {
		if sess.expired(now) || sess.idle(now, s.idleTimeout) {
			toRemove = append(toRemove, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range toRemove {
		s.Remove(id)
	}
}
