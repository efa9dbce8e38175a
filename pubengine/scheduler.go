package pubengine

import (
	"container/heap"
	"time"
)

// schedEntry is one subscription's next-fire-time in the scheduler heap.
type schedEntry struct {
	subID uint32
	at    time.Time
	index int
}

// schedHeap is a container/heap min-heap ordered by fire time, keyed by
// subscription id so a subscription's entry can be found and rescheduled
// in place rather than re-pushed (§4.6's single-timer design note).
type schedHeap []*schedEntry

func (h schedHeap) Len() int            { return len(h) }
func (h schedHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h schedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *schedHeap) Push(x interface{}) {
	entry := x.(*schedEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *schedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// scheduler maintains one next-fire-time per subscription in a single
// min-heap, so the engine needs one timer for the whole server instead of
// one per subscription (§4.6).
type scheduler struct {
	heap    schedHeap
	byID    map[uint32]*schedEntry
}

func newScheduler() *scheduler {
	return &scheduler{byID: make(map[uint32]*schedEntry)}
}

// schedule sets or updates the fire time for subID.
func (s *scheduler) schedule(subID uint32, at time.Time) {
	if entry, ok := s.byID[subID]; ok {
		entry.at = at
		heap.Fix(&s.heap, entry.index)
		return
	}
	entry := &schedEntry{subID: subID, at: at}
	heap.Push(&s.heap, entry)
	s.byID[subID] = entry
}

// remove drops subID from the schedule entirely, e.g. when it closes.
func (s *scheduler) remove(subID uint32) {
	entry, ok := s.byID[subID]
	if !ok {
		return
	}
	heap.Remove(&s.heap, entry.index)
	delete(s.byID, subID)
}

// due pops every entry whose fire time is at or before now, returning the
// affected subscription ids in fire order.
func (s *scheduler) due(now time.Time) []uint32 {
	var ids []uint32
	for s.heap.Len() > 0 && !s.heap[0].at.After(now) {
		entry := heap.Pop(&s.heap).(*schedEntry)
		delete(s.byID, entry.subID)
		ids = append(ids, entry.subID)
	}
	return ids
}

// nextFireTime returns the earliest scheduled fire time and whether one
// exists, for a real-time scheduler loop to sleep until.
func (s *scheduler) nextFireTime() (time.Time, bool) {
	if s.heap.Len() == 0 {
		return time.Time{}, false
	}
	return s.heap[0].at, true
}

func (s *scheduler) len() int {
	return s.heap.Len()
}
