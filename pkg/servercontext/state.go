// Package servercontext implements ServerContext (C3): the per-downstream-
// server state machine, capability cache, and token refresh scheduler.
// Grounded on the teacher's clientConfig/clientPool entry lifecycle,
// generalized from a single Connected/Disconnected boolean into the
// spec's five-state machine (spec.md §4.3).
package servercontext

import "fmt"

// State is a node in the ServerContext state machine described in
// spec.md §4.3.
type State string

const (
	StateOffline    State = "offline"
	StateConnecting State = "connecting"
	StateOnline     State = "online"
	StateError      State = "error"
	StateSleeping   State = "sleeping"
)

// transitions enumerates the legal edges of the state machine; the
// ServerContext.transition method rejects anything not listed here rather than silently clobbering state.
var transitions = map[State]map[State]bool{
	StateOffline:    {StateConnecting: true, StateSleeping: true},
	StateSleeping:   {StateConnecting: true},
	StateConnecting: {StateOnline: true, StateError: true},
	StateOnline:     {StateError: true, StateOffline: true},
	StateError:      {StateConnecting: true, StateOffline: true},
}

// ErrIllegalTransition reports an attempt to move to a state not reachable
// from the current one.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("servercontext: illegal transition %s -> %s", e.From, e.To)
}

func canTransition(from, to State) bool {
	return transitions[from][to]
}
