package pubengine

import "github.com/oparthasarathy/opcua-publishengine/pubengine/internal/diag"

// DefaultMaxRetransmitQueueSize is used when a subscription's
// maxNotificationsPerPublish is 0 (unlimited) and no explicit cap was
// configured. See SPEC_FULL.md §11 for the policy this resolves.
const DefaultMaxRetransmitQueueSize = 1024

// retransmissionQueue is the bounded, ordered sentNotifications map: every
// NotificationMessage sent to the client and not yet acknowledged. Keys are
// strictly increasing because they come from a Sequencer.
type retransmissionQueue struct {
	order    []uint64
	entries  map[uint64]NotificationMessage
	capacity int
	diag     *diag.Logger
	subID    uint32
}

func newRetransmissionQueue(capacity int, logger *diag.Logger, subID uint32) *retransmissionQueue {
	if capacity <= 0 {
		capacity = DefaultMaxRetransmitQueueSize
	}
	return &retransmissionQueue{
		entries:  make(map[uint64]NotificationMessage),
		capacity: capacity,
		diag:     logger,
		subID:    subID,
	}
}

// add stores msg under seq, evicting the oldest unacknowledged entry if the
// queue is at capacity.
func (q *retransmissionQueue) add(seq uint64, msg NotificationMessage) {
	q.order = append(q.order, seq)
	q.entries[seq] = msg
	for len(q.order) > q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.entries, oldest)
		q.diag.Warn("retransmission queue full, dropping oldest unacknowledged notification", map[string]any{
			"subscriptionId": q.subID,
			"sequenceNumber": oldest,
		})
	}
}

// remove deletes seq if present and reports whether it was found.
func (q *retransmissionQueue) remove(seq uint64) bool {
	if _, ok := q.entries[seq]; !ok {
		return false
	}
	delete(q.entries, seq)
	for i, s := range q.order {
		if s == seq {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// availableSequenceNumbers returns the ascending key set, per §3's
// derived availableSequenceNumbers definition.
func (q *retransmissionQueue) availableSequenceNumbers() []uint64 {
	out := make([]uint64, len(q.order))
	copy(out, q.order)
	return out
}

func (q *retransmissionQueue) len() int {
	return len(q.order)
}
