// Package eventstore implements the per-session, bounded, FIFO-evicting
// event log (C6) that makes streamable-HTTP reconnects resumable. Grounded
// on the teacher's producer-single/many-replayers locking discipline
// (spec.md §5) and on the observation (see _examples/other_examples'
// golang-tools mcp/streamable.go copy) that even the reference MCP SDK
// leaves event storage as a pluggable TODO — there is no corpus library
// that already does this, so it is hand-rolled against a plain mutex and
// slice, the way the teacher reaches for stdlib containers over a
// generic ring-buffer dependency for small in-memory structures.
package eventstore

import (
	"fmt"
	"sync"
)

// Entry is one stored outbound event, per spec.md §3.
type Entry struct {
	EventID   uint64
	SessionID string
	Payload   []byte
}

// Store is one session's bounded event log. The zero value is not usable;
// construct with New.
type Store struct {
	sessionID string
	capacity  int

	mu      sync.Mutex
	entries []Entry // ordered by EventID ascending; FIFO-evicted from the front
	nextID  uint64
	// evictedThrough is the EventID of the most recently evicted entry;
	// every id at or below it is gone for good.
	evictedThrough uint64
}

const defaultCapacity = 1024

// New returns a Store for sessionID with the default bounded capacity.
func New(sessionID string) *Store { return NewWithCapacity(sessionID, defaultCapacity) }

// NewWithCapacity returns a Store for sessionID bounded to capacity entries.
func NewWithCapacity(sessionID string, capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{sessionID: sessionID, capacity: capacity, nextID: 1}
}

// Append assigns the next monotonic event id to payload, stores it, and
// evicts the oldest entry if the store is at capacity. Never reorders.
func (s *Store) Append(payload []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	s.entries = append(s.entries, Entry{EventID: id, SessionID: s.sessionID, Payload: payload})
	if len(s.entries) > s.capacity {
		evicted := s.entries[0]
		s.entries = s.entries[1:]
		s.evictedThrough = evicted.EventID
	}
	return id
}

// ErrEvicted is returned by Replay when lastEventID predates the oldest
// retained entry: the client must restart from a full listing, since the
// gap cannot be filled.
type ErrEvicted struct {
	Requested uint64
	OldestKept uint64
}

func (e *ErrEvicted) Error() string {
	return fmt.Sprintf("eventstore: requested replay from %d but oldest retained event is %d", e.Requested, e.OldestKept)
}

// Replay returns all stored entries with EventID > lastEventID, in order.
// If lastEventID is 0, every retained entry is returned (a fresh stream
// with no Last-Event-Id). If the gap between lastEventID and the oldest
// retained entry has already been evicted, ErrEvicted is returned.
func (s *Store) Replay(lastEventID uint64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lastEventID > 0 && len(s.entries) > 0 && lastEventID < s.entries[0].EventID-1 {
		return nil, &ErrEvicted{Requested: lastEventID, OldestKept: s.entries[0].EventID}
	}
	if lastEventID > 0 && lastEventID < s.evictedThrough {
		return nil, &ErrEvicted{Requested: lastEventID, OldestKept: s.evictedThrough + 1}
	}

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.EventID > lastEventID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LastEventID returns the id of the most recently appended event, or 0 if
// the store is empty.
func (s *Store) LastEventID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return s.evictedThrough
	}
	return s.entries[len(s.entries)-1].EventID
}
