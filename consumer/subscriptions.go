// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "sync"

// subscriptionRegistry holds the topic to filter expression mapping. At most
// one entry exists per topic; a later subscribe replaces the prior expression
// outright, it never merges.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]FilterExpression
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs: make(map[string]FilterExpression),
	}
}

func (r *subscriptionRegistry) set(topic string, expr FilterExpression) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[topic] = expr
}

func (r *subscriptionRegistry) remove(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, topic)
}

// snapshot returns a point-in-time copy. Callers own the returned map.
func (r *subscriptionRegistry) snapshot() map[string]FilterExpression {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]FilterExpression, len(r.subs))
	for topic, expr := range r.subs {
		out[topic] = expr
	}
	return out
}
