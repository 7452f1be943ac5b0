// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"time"
)

// messageLease tracks the visibility state of one checked-out delivery.
type messageLease struct {
	handle         string
	topic          string
	messageID      string
	invisibleUntil time.Time
	acked          bool
	extending      int // extend round trips currently in flight
}

// leaseTracker is the single source of truth for whether a handle is live,
// acknowledgeable, or extendable. All same-handle races (ack vs ack, ack vs
// extend, extend vs expiry) are linearized under one mutex.
//
// Acknowledged entries are kept as tombstones until their original deadline
// passes so a duplicate ack can be answered with ErrAlreadyAcknowledged
// rather than ErrUnknownHandle; the sweep removes them afterwards. Expired
// un-acknowledged entries are evicted passively on access or by the sweep —
// redelivery is the broker's job, no local action follows.
type leaseTracker struct {
	mu     sync.Mutex
	leases map[string]*messageLease

	now func() time.Time
}

func newLeaseTracker() *leaseTracker {
	return &leaseTracker{
		leases: make(map[string]*messageLease),
		now:    time.Now,
	}
}

// register records a freshly delivered handle. Called once per delivery at
// receipt time; handles are unique per delivery attempt, so an existing entry
// under the same handle is replaced.
func (t *leaseTracker) register(handle, topic, messageID string, invisible time.Duration) time.Time {
	deadline := t.now().Add(invisible)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.leases[handle] = &messageLease{
		handle:         handle,
		topic:          topic,
		messageID:      messageID,
		invisibleUntil: deadline,
	}
	return deadline
}

// tryAcknowledge consumes the handle. It succeeds exactly once: a second call
// returns ErrAlreadyAcknowledged, a call for an unregistered or evicted
// handle returns ErrUnknownHandle. Expired un-acknowledged entries are
// evicted here rather than acknowledged; the broker may already have
// redelivered the message under a new handle.
func (t *leaseTracker) tryAcknowledge(handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lease, ok := t.leases[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if lease.acked {
		return ErrAlreadyAcknowledged
	}
	if !t.now().Before(lease.invisibleUntil) && lease.extending == 0 {
		delete(t.leases, handle)
		return ErrUnknownHandle
	}

	lease.acked = true
	return nil
}

// rollbackAcknowledge undoes tryAcknowledge after a transient gateway
// failure so the caller may retry. A terminal broker verdict must not be
// rolled back; the commit already happened somewhere.
func (t *leaseTracker) rollbackAcknowledge(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lease, ok := t.leases[handle]; ok {
		lease.acked = false
	}
}

// tryExtend grants permission to refresh the visibility deadline. It succeeds
// only while the handle is registered, un-acknowledged, and strictly before
// its deadline. Callers must pair a granted tryExtend with commitExtend or
// abortExtend once the gateway round trip resolves.
func (t *leaseTracker) tryExtend(handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lease, ok := t.leases[handle]
	if !ok {
		return ErrLeaseExpired
	}
	if lease.acked {
		return ErrAlreadyAcknowledged
	}
	if !t.now().Before(lease.invisibleUntil) {
		if lease.extending == 0 {
			delete(t.leases, handle)
		}
		return ErrLeaseExpired
	}

	lease.extending++
	return nil
}

// commitExtend re-bases the deadline from the current time. Refresh
// semantics, never "extend from original receipt". If the handle was
// acknowledged while the extend round trip was in flight the ack wins: the
// tombstone's deadline is left alone.
func (t *leaseTracker) commitExtend(handle string, invisible time.Duration) time.Time {
	deadline := t.now().Add(invisible)

	t.mu.Lock()
	defer t.mu.Unlock()

	if lease, ok := t.leases[handle]; ok {
		lease.extending--
		if !lease.acked {
			lease.invisibleUntil = deadline
		}
	}
	return deadline
}

// abortExtend releases a granted extension without touching the deadline.
func (t *leaseTracker) abortExtend(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lease, ok := t.leases[handle]; ok {
		lease.extending--
	}
}

// evict drops the entry unconditionally.
func (t *leaseTracker) evict(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.leases, handle)
}

// deadline reports the stored invisible-until timestamp.
func (t *leaseTracker) deadline(handle string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lease, ok := t.leases[handle]
	if !ok {
		return time.Time{}, false
	}
	return lease.invisibleUntil, true
}

// sweep removes entries whose deadline passed: stale un-acknowledged leases
// (the broker owns redelivery now) and acknowledged tombstones. Entries with
// an extend in flight are skipped; the pending gateway response may still
// refresh them. Returns the number of entries removed.
func (t *leaseTracker) sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for handle, lease := range t.leases {
		if lease.extending > 0 {
			continue
		}
		if !now.Before(lease.invisibleUntil) {
			delete(t.leases, handle)
			removed++
		}
	}
	return removed
}

// count returns the number of tracked leases.
func (t *leaseTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.leases)
}
