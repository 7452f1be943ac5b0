// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachineTransitions(t *testing.T) {
	sm := newStateMachine()
	assert.Equal(t, StateNew, sm.get())

	assert.True(t, sm.transition(StateNew, StateStarted))
	assert.True(t, sm.isStarted())

	// One-directional: no way back.
	assert.False(t, sm.transition(StateStarted, StateNew))

	assert.True(t, sm.transition(StateStarted, StateClosing))
	assert.True(t, sm.isTerminal())
	assert.False(t, sm.isStarted())

	sm.set(StateClosed)
	assert.Equal(t, StateClosed, sm.get())
	assert.False(t, sm.transition(StateClosed, StateStarted))
}

func TestStateMachineDoubleStart(t *testing.T) {
	sm := newStateMachine()

	assert.True(t, sm.transition(StateNew, StateStarted))
	assert.False(t, sm.transition(StateNew, StateStarted))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "new", StateNew.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}
