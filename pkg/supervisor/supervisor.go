// Package supervisor implements ServerSupervisor (C4): the central registry
// of ServerContexts, connection lifecycle operations, and the resource
// subscription refcounting engine. Grounded on the teacher's clientPool map
// + golang.org/x/sync/errgroup fan-out for connectAllServers.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcp-proxy/gateway/pkg/servercontext"
	"github.com/mcp-proxy/gateway/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Connector builds and connects the downstream client for a server entity:
// auth init, transport construction, MCP client instantiation, a 5s ping,
// and an initial capability fetch, per spec.md §4.4.
type Connector func(ctx context.Context, entity *store.ServerEntity, userToken string) (*servercontext.Context, error)

type temporaryKey struct {
	ServerID string
	UserID   string
}

// Supervisor is ServerSupervisor (C4).
type Supervisor struct {
	connect Connector

	mu               sync.Mutex
	serverContexts   map[string]*servercontext.Context
	launchConfigHash map[string]string
	temporaryServers map[temporaryKey]*servercontext.Context

	subMu         sync.Mutex
	subscriptions map[string]map[string]map[string]bool // serverID -> uri -> sessionID -> true
	subscribeFn   func(ctx context.Context, serverID, uri string) error
	unsubscribeFn func(ctx context.Context, serverID, uri string) error
}

// New builds a Supervisor. subscribeFn/unsubscribeFn issue the single
// downstream (un)subscribe call on first-subscriber/last-unsubscriber
// transitions.
func New(connect Connector, subscribeFn, unsubscribeFn func(ctx context.Context, serverID, uri string) error) *Supervisor {
	return &Supervisor{
		connect:          connect,
		serverContexts:   make(map[string]*servercontext.Context),
		launchConfigHash: make(map[string]string),
		temporaryServers: make(map[temporaryKey]*servercontext.Context),
		subscriptions:    make(map[string]map[string]map[string]bool),
		subscribeFn:      subscribeFn,
		unsubscribeFn:    unsubscribeFn,
	}
}

// Get returns the ServerContext for serverID, if registered.
func (s *Supervisor) Get(serverID string) (*servercontext.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.serverContexts[serverID]
	return sc, ok
}

// AddServer implements spec.md §4.4's addServer contract: reuses a live
// entry whose launchConfig is unchanged and whose state is Online or
// Connecting; otherwise tears down and recreates.
func (s *Supervisor) AddServer(ctx context.Context, entity *store.ServerEntity, userToken string) (*servercontext.Context, error) {
	hash := launchConfigHash(entity.LaunchConfig)

	s.mu.Lock()
	existing, ok := s.serverContexts[entity.ServerID]
	sameConfig := ok && s.launchConfigHash[entity.ServerID] == hash
	s.mu.Unlock()

	if ok && sameConfig {
		switch existing.State() {
		case servercontext.StateOnline, servercontext.StateConnecting:
			return existing, nil
		}
	}

	if ok {
		s.RemoveServer(entity.ServerID)
	}

	sc, err := s.connect(ctx, entity, userToken)
	if err != nil {
		return nil, fmt.Errorf("supervisor: add server %s: %w", entity.ServerID, err)
	}

	s.mu.Lock()
	s.serverContexts[entity.ServerID] = sc
	s.launchConfigHash[entity.ServerID] = hash
	s.mu.Unlock()

	return sc, nil
}

// RemoveServer tears down a server context. Idempotent.
func (s *Supervisor) RemoveServer(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(serverID)
}

func (s *Supervisor) removeLocked(serverID string) {
	sc, ok := s.serverContexts[serverID]
	if !ok {
		return
	}
	sc.Remove()
	delete(s.serverContexts, serverID)
	delete(s.launchConfigHash, serverID)
}

// ReconnectServer is remove + add, per spec.md §4.4.
func (s *Supervisor) ReconnectServer(ctx context.Context, entity *store.ServerEntity, userToken string) (*servercontext.Context, error) {
	s.RemoveServer(entity.ServerID)
	return s.AddServer(ctx, entity, userToken)
}

// ConnectResult is the outcome of ConnectAllServers.
type ConnectResult struct {
	SuccessServers []string
	FailedServers  map[string]error
}

// ConnectAllServers attempts concurrent connection for every enabled,
// non-user-input server, per spec.md §4.4.
func (s *Supervisor) ConnectAllServers(ctx context.Context, entities []*store.ServerEntity, token string) ConnectResult {
	result := ConnectResult{FailedServers: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entities {
		if !e.Enabled || e.AllowUserInput {
			continue
		}
		e := e
		g.Go(func() error {
			_, err := s.AddServer(gctx, e, token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedServers[e.ServerID] = err
			} else {
				result.SuccessServers = append(result.SuccessServers, e.ServerID)
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// GetOrCreateTemporary returns the on-demand ServerContext for a user's
// allowUserInput template instance, creating it on first use.
func (s *Supervisor) GetOrCreateTemporary(ctx context.Context, entity *store.ServerEntity, userID, userToken string) (*servercontext.Context, error) {
	key := temporaryKey{ServerID: entity.ServerID, UserID: userID}

	s.mu.Lock()
	if sc, ok := s.temporaryServers[key]; ok {
		s.mu.Unlock()
		return sc, nil
	}
	s.mu.Unlock()

	sc, err := s.connect(ctx, entity, userToken)
	if err != nil {
		return nil, fmt.Errorf("supervisor: temporary server %s/%s: %w", entity.ServerID, userID, err)
	}

	s.mu.Lock()
	s.temporaryServers[key] = sc
	s.mu.Unlock()
	return sc, nil
}

// CloseTemporary tears down a user's temporary server instance (called when
// the user's last session ends or the template is deleted).
func (s *Supervisor) CloseTemporary(serverID, userID string) {
	key := temporaryKey{ServerID: serverID, UserID: userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.temporaryServers[key]; ok {
		sc.Remove()
		delete(s.temporaryServers, key)
	}
}

func launchConfigHash(blob []byte) string {
	return string(blob)
}
