package testutil

import (
	"testing"

	"github.com/oparthasarathy/opcua-publishengine/pubengine"
)

func TestCounterIsMonotonicAndConcurrencySafe(t *testing.T) {
	c := &Counter{}
	seen := make(map[int]bool)
	for i := 0; i < 5; i++ {
		n := c.Next()
		if seen[n] {
			t.Fatalf("Counter produced duplicate value %d", n)
		}
		seen[n] = true
	}
}

func TestFakeNotificationSourceHarvestRespectsMax(t *testing.T) {
	src := &FakeNotificationSource{}
	for i := 0; i < 3; i++ {
		src.Push(pubengine.Notification{MonitoredItemID: uint32(i)})
	}
	if !src.HasPendingNotifications() {
		t.Fatalf("expected pending notifications after Push")
	}

	batch, more := src.HarvestNotifications(2)
	if len(batch) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(batch))
	}
	if !more {
		t.Fatalf("expected more pending after partial harvest")
	}

	rest, more := src.HarvestNotifications(0)
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining notification, got %d", len(rest))
	}
	if more {
		t.Fatalf("expected no more pending after full harvest")
	}
	if src.HasPendingNotifications() {
		t.Fatalf("expected no pending notifications after full harvest")
	}
}
