// Package testutil provides deterministic fakes for exercising the publish
// engine without a real OPC UA address space or transport.
package testutil

import (
	"sync"

	"github.com/oparthasarathy/opcua-publishengine/pubengine"
)

// Counter is a deterministic integer counter for tests.
type Counter struct {
	lock  sync.Mutex
	value int
}

// Next increments and returns the counter value.
func (c *Counter) Next() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.value++
	return c.value
}

// FakeNotificationSource is a manually-armed pubengine.NotificationSource.
// Tests call Push to queue values the source will report as pending, and
// the subscription under test drains them via HarvestNotifications.
type FakeNotificationSource struct {
	lock    sync.Mutex
	pending []pubengine.Notification
}

// Push appends a notification to the source's pending queue.
func (f *FakeNotificationSource) Push(n pubengine.Notification) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.pending = append(f.pending, n)
}

// HasPendingNotifications reports whether any notification is queued.
func (f *FakeNotificationSource) HasPendingNotifications() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.pending) > 0
}

// HarvestNotifications drains up to max queued notifications (0 = all).
func (f *FakeNotificationSource) HarvestNotifications(max int) ([]pubengine.Notification, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	n := len(f.pending)
	if max > 0 && max < n {
		n = max
	}
	harvested := append([]pubengine.Notification(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	return harvested, len(f.pending) > 0
}
