// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "sync/atomic"

// State represents the consumer lifecycle state.
type State uint32

// Consumer states. Transitions are one-directional:
// NEW -> STARTED -> CLOSING -> CLOSED.
const (
	StateNew State = iota
	StateStarted
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarted:
		return "started"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine handles atomic lifecycle transitions.
type stateMachine struct {
	state uint32
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: uint32(StateNew)}
}

// get returns the current state.
func (sm *stateMachine) get() State {
	return State(atomic.LoadUint32(&sm.state))
}

// set unconditionally sets the state.
func (sm *stateMachine) set(s State) {
	atomic.StoreUint32(&sm.state, uint32(s))
}

// transition attempts to move from the expected state to the new one.
// Returns true on success.
func (sm *stateMachine) transition(from, to State) bool {
	return atomic.CompareAndSwapUint32(&sm.state, uint32(from), uint32(to))
}

// isStarted returns true if data-plane operations are permitted.
func (sm *stateMachine) isStarted() bool {
	return sm.get() == StateStarted
}

// isTerminal returns true once close has begun.
func (sm *stateMachine) isTerminal() bool {
	s := sm.get()
	return s == StateClosing || s == StateClosed
}
