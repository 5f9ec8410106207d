// Package requestid implements the per-session RequestIdMapper (C5):
// a map from the proxy-minted id forwarded downstream to the client's
// original request id and the target server. Lookups go by proxy id only;
// there is no lookup by client id. Grounded on
// the teacher's locking discipline (pkg/gateway's per-resource mutexes) —
// access here is always on the owning session's serialized path, so a plain
// mutex-guarded map is enough; no lock-free structure is warranted.
package requestid

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one in-flight forwarded request, per spec.md §3.
type Entry struct {
	ProxyRequestID   string
	OriginalClientID json.RawMessage
	ServerID         string
	Method           string
	CreatedAt        time.Time
}

// Mapper is one session's RequestIdMapper. The zero value is not usable;
// construct with New.
type Mapper struct {
	sessionID string
	counter   atomic.Uint64

	mu      sync.Mutex
	byProxy map[string]Entry
}

// New returns a Mapper for the given session. proxyRequestId values it
// mints are prefixed with sessionID so a server-initiated reverse request
// carrying only the id can still be routed back to this session (spec.md
// §3, "RequestIdMapper entry").
func New(sessionID string) *Mapper {
	return &Mapper{sessionID: sessionID, byProxy: make(map[string]Entry)}
}

// SessionID returns the owning session id.
func (m *Mapper) SessionID() string { return m.sessionID }

// Forward registers a new forwarded request and returns the minted
// proxyRequestId. The id's prefix (up to the first ':') is the session id,
// per spec.md §3 and §4.5 (GlobalRequestRouter routes on this prefix).
func (m *Mapper) Forward(originalClientID json.RawMessage, serverID, method string) string {
	n := m.counter.Add(1)
	proxyID := fmt.Sprintf("%s:%d", m.sessionID, n)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byProxy[proxyID] = Entry{
		ProxyRequestID:   proxyID,
		OriginalClientID: originalClientID,
		ServerID:         serverID,
		Method:           method,
		CreatedAt:        time.Now(),
	}
	return proxyID
}

// Resolve looks up the Entry for a proxyRequestId without removing it.
func (m *Mapper) Resolve(proxyRequestID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byProxy[proxyRequestID]
	return e, ok
}

// Complete removes the mapping for a proxyRequestId, whether it completed
// normally or was cancelled. Returns the removed Entry (ok=false if absent,
// e.g. it was already completed or cancelled concurrently).
func (m *Mapper) Complete(proxyRequestID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byProxy[proxyRequestID]
	if ok {
		delete(m.byProxy, proxyRequestID)
	}
	return e, ok
}

// Len reports the number of in-flight mappings (test/debug helper).
func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byProxy)
}

// SessionIDFromProxyRequestID extracts the owning session id from a
// proxyRequestId of the form "{sessionId}:{n}", per spec.md §3's "prefix
// encodes the owning sessionId". Used by GlobalRequestRouter.
func SessionIDFromProxyRequestID(proxyRequestID string) (sessionID string, ok bool) {
	for i := 0; i < len(proxyRequestID); i++ {
		if proxyRequestID[i] == ':' {
			return proxyRequestID[:i], true
		}
	}
	return "", false
}
