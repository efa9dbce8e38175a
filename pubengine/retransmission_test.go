package pubengine

import "testing"

func TestRetransmissionQueueEvictsOldestOnOverflow(t *testing.T) {
	q := newRetransmissionQueue(2, nil, 1)
	q.add(1, NotificationMessage{SequenceNumber: 1})
	q.add(2, NotificationMessage{SequenceNumber: 2})
	q.add(3, NotificationMessage{SequenceNumber: 3})

	got := q.availableSequenceNumbers()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3] after overflow eviction, got %v", got)
	}
}

func TestRetransmissionQueueRemoveReportsUnknown(t *testing.T) {
	q := newRetransmissionQueue(4, nil, 1)
	q.add(5, NotificationMessage{SequenceNumber: 5})

	if !q.remove(5) {
		t.Fatalf("expected remove(5) to succeed")
	}
	if q.remove(5) {
		t.Fatalf("expected second remove(5) to report unknown")
	}
	if q.remove(99) {
		t.Fatalf("expected remove of never-added seq to report unknown")
	}
}

func TestRetransmissionQueueZeroCapacityFallsBackToDefault(t *testing.T) {
	q := newRetransmissionQueue(0, nil, 1)
	if q.capacity != DefaultMaxRetransmitQueueSize {
		t.Fatalf("expected default capacity %d, got %d", DefaultMaxRetransmitQueueSize, q.capacity)
	}
}
