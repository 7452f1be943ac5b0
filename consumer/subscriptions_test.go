// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRegistryReplaceNotMerge(t *testing.T) {
	r := newSubscriptionRegistry()

	r.set("orders", NewFilterExpression("tagA"))
	r.set("orders", NewFilterExpression("tagB"))

	snap := r.snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "tagB", snap["orders"].Expression)
}

func TestSubscriptionRegistryRemoveAbsentTopic(t *testing.T) {
	r := newSubscriptionRegistry()

	r.remove("never-subscribed")
	assert.Empty(t, r.snapshot())
}

func TestSubscriptionRegistrySnapshotIsolated(t *testing.T) {
	r := newSubscriptionRegistry()
	r.set("orders", NewFilterExpression("tagA"))

	snap := r.snapshot()
	r.set("payments", NewFilterExpression(SubAll))
	snap["mutated"] = NewFilterExpression("x")

	assert.Len(t, snap, 2)
	fresh := r.snapshot()
	assert.Len(t, fresh, 2)
	assert.NotContains(t, fresh, "mutated")
}

func TestSubscriptionRegistryConcurrentAccess(t *testing.T) {
	r := newSubscriptionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			r.set("orders", NewFilterExpression("tagA"))
		}()
		go func() {
			defer wg.Done()
			r.remove("orders")
		}()
		go func() {
			defer wg.Done()
			_ = r.snapshot()
		}()
	}
	wg.Wait()
}
