// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseTrackerAckSucceedsOnce(t *testing.T) {
	tr := newLeaseTracker()
	tr.register("h1", "orders", "m1", time.Minute)

	require.NoError(t, tr.tryAcknowledge("h1"))
	assert.ErrorIs(t, tr.tryAcknowledge("h1"), ErrAlreadyAcknowledged)
}

func TestLeaseTrackerAckUnknownHandle(t *testing.T) {
	tr := newLeaseTracker()

	assert.ErrorIs(t, tr.tryAcknowledge("never-registered"), ErrUnknownHandle)
}

func TestLeaseTrackerAckAfterExpiryEvicts(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.register("h1", "orders", "m1", 5*time.Second)

	now = now.Add(6 * time.Second)
	assert.ErrorIs(t, tr.tryAcknowledge("h1"), ErrUnknownHandle)
	assert.Equal(t, 0, tr.count())
}

func TestLeaseTrackerExtendRefreshesFromNow(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.register("h1", "orders", "m1", 10*time.Second)

	// Partway through the window the deadline re-bases from the current
	// time, not from receipt time.
	now = now.Add(4 * time.Second)
	require.NoError(t, tr.tryExtend("h1"))
	deadline := tr.commitExtend("h1", 10*time.Second)
	assert.Equal(t, now.Add(10*time.Second), deadline)

	// Repeated refreshes keep moving the deadline.
	now = now.Add(9 * time.Second)
	require.NoError(t, tr.tryExtend("h1"))
	deadline = tr.commitExtend("h1", 3*time.Second)
	assert.Equal(t, now.Add(3*time.Second), deadline)
}

func TestLeaseTrackerExtendAfterDeadline(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.register("h1", "orders", "m1", 5*time.Second)

	now = now.Add(5 * time.Second) // exactly at the deadline is too late
	assert.ErrorIs(t, tr.tryExtend("h1"), ErrLeaseExpired)
	assert.Equal(t, 0, tr.count())
}

func TestLeaseTrackerExtendAfterAck(t *testing.T) {
	tr := newLeaseTracker()
	tr.register("h1", "orders", "m1", time.Minute)

	require.NoError(t, tr.tryAcknowledge("h1"))
	assert.ErrorIs(t, tr.tryExtend("h1"), ErrAlreadyAcknowledged)
}

func TestLeaseTrackerAckDuringPendingExtend(t *testing.T) {
	tr := newLeaseTracker()
	tr.register("h1", "orders", "m1", time.Minute)

	// An ack arriving while an extend round trip is in flight is legal in
	// sequential order (extend, then ack). The late extend commit must not
	// resurrect the consumed lease.
	require.NoError(t, tr.tryExtend("h1"))
	require.NoError(t, tr.tryAcknowledge("h1"))
	tr.commitExtend("h1", time.Minute)

	assert.ErrorIs(t, tr.tryAcknowledge("h1"), ErrAlreadyAcknowledged)
	assert.ErrorIs(t, tr.tryExtend("h1"), ErrAlreadyAcknowledged)
}

func TestLeaseTrackerAbortExtendKeepsDeadline(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.register("h1", "orders", "m1", 10*time.Second)

	require.NoError(t, tr.tryExtend("h1"))
	tr.abortExtend("h1")

	deadline, ok := tr.deadline("h1")
	require.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second), deadline)
}

func TestLeaseTrackerConcurrentAckExactlyOneWins(t *testing.T) {
	tr := newLeaseTracker()
	tr.register("h1", "orders", "m1", time.Minute)

	const callers = 50
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- tr.tryAcknowledge("h1")
		}()
	}
	wg.Wait()
	close(results)

	wins, dupes := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrAlreadyAcknowledged):
			dupes++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, dupes)
}

func TestLeaseTrackerSweep(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.register("expired", "orders", "m1", 5*time.Second)
	tr.register("live", "orders", "m2", time.Minute)
	tr.register("extending", "orders", "m3", 5*time.Second)
	require.NoError(t, tr.tryExtend("extending"))

	now = now.Add(10 * time.Second)
	removed := tr.sweep()

	// The entry with an extend in flight survives; the gateway response
	// may still refresh it.
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, tr.count())

	_, ok := tr.deadline("live")
	assert.True(t, ok)
}

func TestLeaseTrackerSweepRemovesAckedTombstones(t *testing.T) {
	tr := newLeaseTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.register("h1", "orders", "m1", 5*time.Second)
	require.NoError(t, tr.tryAcknowledge("h1"))

	// Within the window the tombstone answers duplicate acks.
	assert.Equal(t, 0, tr.sweep())
	assert.ErrorIs(t, tr.tryAcknowledge("h1"), ErrAlreadyAcknowledged)

	now = now.Add(6 * time.Second)
	assert.Equal(t, 1, tr.sweep())
	assert.ErrorIs(t, tr.tryAcknowledge("h1"), ErrUnknownHandle)
}

func TestLeaseTrackerRollbackAcknowledge(t *testing.T) {
	tr := newLeaseTracker()
	tr.register("h1", "orders", "m1", time.Minute)

	require.NoError(t, tr.tryAcknowledge("h1"))
	tr.rollbackAcknowledge("h1")
	assert.NoError(t, tr.tryAcknowledge("h1"))
}
