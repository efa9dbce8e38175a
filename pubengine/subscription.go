package pubengine

import (
	"sync"
	"time"

	"github.com/oparthasarathy/opcua-publishengine/pubengine/internal/diag"
	"github.com/oparthasarathy/opcua-publishengine/pubengine/internal/seqnum"
)

// State is one of the five publishing states a Subscription moves through
// (§4.1).
type State int

const (
	Creating State = iota
	Normal
	Late
	KeepAlive
	Closed
)

func (s State) String() string {
	switch s {
	case Creating:
		return "CREATING"
	case Normal:
		return "NORMAL"
	case Late:
		return "LATE"
	case KeepAlive:
		return "KEEPALIVE"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type monitoredItemEntry struct {
	id     uint32
	source NotificationSource
}

// SubscriptionOptions configures a new Subscription. Zero values apply the
// §3/§9 defaults and coercions.
type SubscriptionOptions struct {
	PublishingInterval         time.Duration
	MaxKeepAliveCount          uint32
	LifeTimeCount              uint32
	MaxNotificationsPerPublish uint32
	PublishingEnabled          bool
	// MaxRetransmitQueueSize bounds sentNotifications. Zero selects the
	// §9/§11 default: maxNotificationsPerPublish*maxKeepAliveCount when
	// maxNotificationsPerPublish > 0, else DefaultMaxRetransmitQueueSize.
	MaxRetransmitQueueSize int
	Diagnostics            *diag.Logger
}

// Subscription is the per-subscription publishing state machine described
// in §3/§4.1. Its exported surface is the pure-ish pair the design notes
// (§9) call for: Tick advances it by one publishing interval and ServeLate
// satisfies a sticky LATE obligation when a request arrives out of band;
// neither method reaches back into the engine — the engine supplies a pull
// callback and resolves cross-subscription acknowledgements itself.
type Subscription struct {
	mu sync.Mutex

	id uint32

	publishingInterval         time.Duration
	maxKeepAliveCount          uint32
	lifeTimeCount              uint32
	maxNotificationsPerPublish uint32
	publishingEnabled          bool

	state                State
	publishIntervalCount uint64
	keepAliveCounter     uint32
	lifeTimeCounter      uint32
	lateWantsData        bool

	seq        *seqnum.Sequencer
	retransmit *retransmissionQueue

	items []monitoredItemEntry

	diag *diag.Logger
}

// NewSubscription constructs a Subscription, applying the §3/§9 defaults
// and coercions: lifeTimeCount is raised to at least 3*maxKeepAliveCount,
// and both counters start at their configured ceilings. A zero or negative
// PublishingInterval is left as-is; Engine.AddSubscription fills it in from
// EngineOptions.DefaultPublishingInterval when the subscription is
// registered, since only the engine knows the configured default (§6).
func NewSubscription(id uint32, opts SubscriptionOptions) *Subscription {
	if opts.MaxKeepAliveCount == 0 {
		opts.MaxKeepAliveCount = 1
	}
	minLifeTime := 3 * opts.MaxKeepAliveCount
	if opts.LifeTimeCount < minLifeTime {
		opts.LifeTimeCount = minLifeTime
	}
	cap := opts.MaxRetransmitQueueSize
	if cap <= 0 {
		if opts.MaxNotificationsPerPublish > 0 {
			cap = int(opts.MaxNotificationsPerPublish * opts.MaxKeepAliveCount)
		} else {
			cap = DefaultMaxRetransmitQueueSize
		}
	}

	return &Subscription{
		id:                         id,
		publishingInterval:         opts.PublishingInterval,
		maxKeepAliveCount:          opts.MaxKeepAliveCount,
		lifeTimeCount:              opts.LifeTimeCount,
		maxNotificationsPerPublish: opts.MaxNotificationsPerPublish,
		publishingEnabled:          opts.PublishingEnabled,
		state:                      Creating,
		keepAliveCounter:           opts.MaxKeepAliveCount,
		lifeTimeCounter:            opts.LifeTimeCount,
		seq:                        seqnum.New(1),
		retransmit:                 newRetransmissionQueue(cap, opts.Diagnostics, id),
		diag:                       opts.Diagnostics,
	}
}

// ID returns the subscription's id.
func (s *Subscription) ID() uint32 {
	if s == nil {
		return 0
	}
	return s.id
}

// State returns the current publishing state.
func (s *Subscription) State() State {
	if s == nil {
		return Closed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PublishingInterval returns the configured publishing interval.
func (s *Subscription) PublishingInterval() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishingInterval
}

// SetPublishingInterval changes the cadence; the caller (engine) is
// responsible for rescheduling the subscription's next tick (§4.6).
func (s *Subscription) SetPublishingInterval(interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishingInterval = interval
}

// applyDefaultInterval fills in a zero or negative interval from the
// engine's configured default (§6). Called before clampInterval so the
// substituted value is still subject to the floor/ceiling.
func (s *Subscription) applyDefaultInterval(defaultInterval time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishingInterval <= 0 {
		if defaultInterval <= 0 {
			defaultInterval = DefaultSubscriptionPublishingInterval
		}
		s.publishingInterval = defaultInterval
	}
}

// clampInterval enforces the server-configured floor/ceiling (§3).
func (s *Subscription) clampInterval(min, max time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if min > 0 && s.publishingInterval < min {
		s.publishingInterval = min
	}
	if max > 0 && s.publishingInterval > max {
		s.publishingInterval = max
	}
}

// TimeToExpiration returns lifeTimeCounter*publishingInterval (§3, derived).
func (s *Subscription) TimeToExpiration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.lifeTimeCounter) * s.publishingInterval
}

// AvailableSequenceNumbers returns the ascending key set of sentNotifications.
func (s *Subscription) AvailableSequenceNumbers() []uint64 {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retransmit.availableSequenceNumbers()
}

// AddMonitoredItem attaches a NotificationSource in deterministic (append)
// order (§4.2's "deterministic order" requirement for harvesting).
func (s *Subscription) AddMonitoredItem(id uint32, source NotificationSource) {
	if s == nil || source == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, monitoredItemEntry{id: id, source: source})
}

// RemoveMonitoredItem detaches a previously-added NotificationSource.
func (s *Subscription) RemoveMonitoredItem(id uint32) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.id == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// SetPublishingEnabled toggles data delivery; per §3, keep-alive/lifetime
// counters keep advancing either way.
func (s *Subscription) SetPublishingEnabled(enabled bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishingEnabled = enabled
}

// Terminate transitions the subscription to CLOSED immediately (§5). The
// caller is responsible for queuing the final StatusChangeNotification
// delivery with the engine.
func (s *Subscription) Terminate() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
}

func (s *Subscription) anyPendingLocked() bool {
	for _, item := range s.items {
		if item.source.HasPendingNotifications() {
			return true
		}
	}
	return false
}

// harvestLocked gathers up to maxNotificationsPerPublish notifications
// (0 = unlimited) across monitored items in deterministic order, reporting
// whether any item still has data pending afterward (§4.2).
func (s *Subscription) harvestLocked() (items []Notification, more bool) {
	unlimited := s.maxNotificationsPerPublish == 0
	remaining := int(s.maxNotificationsPerPublish)

	for _, entry := range s.items {
		if !unlimited && remaining <= 0 {
			if entry.source.HasPendingNotifications() {
				more = true
			}
			continue
		}
		max := 0
		if !unlimited {
			max = remaining
		}
		harvested, stillPending := entry.source.HarvestNotifications(max)
		items = append(items, harvested...)
		if !unlimited {
			remaining -= len(harvested)
		}
		if stillPending {
			more = true
		}
	}
	return items, more
}

// PullFunc dequeues the oldest request available to the subscription, or
// reports none was available. The engine supplies this so Subscription
// never reaches into the shared queue directly.
type PullFunc func() (req *PublishRequest, arrival time.Time, ok bool)

// TickResult reports what a Tick or ServeLate call produced.
type TickResult struct {
	Response        *PublishResponse
	ConsumedRequest *PublishRequest
	Closed          bool
}

// Tick advances the subscription by one publishing interval, implementing
// the ordered rules of §4.1. It calls pull at most once, only when the
// subscription has something to send.
func (s *Subscription) Tick(now time.Time, pull PullFunc) *TickResult {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return nil
	}
	s.publishIntervalCount++

	if s.state == Late {
		return s.decrementLifetimeLocked()
	}

	hasData := s.publishingEnabled && s.anyPendingLocked()
	creating := s.state == Creating

	if creating || hasData {
		if req, _, ok := pull(); ok {
			resp := s.buildPublishResponseLocked(now, req, hasData)
			if hasData {
				s.state = Normal
			} else {
				s.state = KeepAlive
			}
			s.resetCountersLocked()
			return &TickResult{Response: resp, ConsumedRequest: req}
		}
		s.state = Late
		s.lateWantsData = hasData
		return s.decrementLifetimeLocked()
	}

	if s.keepAliveCounter > 0 {
		s.keepAliveCounter--
	}
	if s.keepAliveCounter == 0 {
		if req, _, ok := pull(); ok {
			resp := s.buildPublishResponseLocked(now, req, false)
			s.state = KeepAlive
			s.resetCountersLocked()
			return &TickResult{Response: resp, ConsumedRequest: req}
		}
		s.state = Late
		s.lateWantsData = false
		return s.decrementLifetimeLocked()
	}
	return nil
}

func (s *Subscription) decrementLifetimeLocked() *TickResult {
	if s.lifeTimeCounter > 0 {
		s.lifeTimeCounter--
	}
	if s.lifeTimeCounter == 0 {
		s.state = Closed
		return &TickResult{Closed: true}
	}
	return nil
}

func (s *Subscription) resetCountersLocked() {
	s.keepAliveCounter = s.maxKeepAliveCount
	s.lifeTimeCounter = s.lifeTimeCount
}

// ServeLate satisfies a sticky LATE subscription's outstanding
// publish/keep-alive obligation using an already-dequeued request (§4.1's
// "LATE is sticky" rule). It returns nil if the subscription was not
// waiting on a request.
func (s *Subscription) ServeLate(now time.Time, req *PublishRequest) *PublishResponse {
	if s == nil || req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Late {
		return nil
	}
	hasData := s.lateWantsData
	resp := s.buildPublishResponseLocked(now, req, hasData)
	if hasData {
		s.state = Normal
	} else {
		s.state = KeepAlive
	}
	s.resetCountersLocked()
	return resp
}

func (s *Subscription) buildPublishResponseLocked(now time.Time, req *PublishRequest, hasData bool) *PublishResponse {
	var msg NotificationMessage
	msg.PublishTime = now

	if hasData {
		items, more := s.harvestLocked()
		seq := s.seq.Next()
		msg.SequenceNumber = seq
		msg.NotificationData = []NotificationDataItem{DataChangeNotification{Items: items}}
		s.retransmit.add(seq, msg)
		resultsAndAcks := s.buildResultsLocked(req)
		return &PublishResponse{
			Header:                   ResponseHeader{ServiceResult: Good, RequestHandle: req.RequestHandle, Timestamp: now},
			SubscriptionID:           s.id,
			AvailableSequenceNumbers: s.retransmit.availableSequenceNumbers(),
			MoreNotifications:        more,
			NotificationMessage:      msg,
			Results:                  resultsAndAcks,
		}
	}

	resultsAndAcks := s.buildResultsLocked(req)
	return &PublishResponse{
		Header:                   ResponseHeader{ServiceResult: Good, RequestHandle: req.RequestHandle, Timestamp: now},
		SubscriptionID:           s.id,
		AvailableSequenceNumbers: s.retransmit.availableSequenceNumbers(),
		MoreNotifications:        false,
		NotificationMessage:      msg,
		Results:                  resultsAndAcks,
	}
}

// buildResultsLocked resolves every acknowledgement that targets this
// subscription itself and leaves a statusPending sentinel for the engine to
// resolve against other live subscriptions or BadSubscriptionIdInvalid
// (§4.3).
func (s *Subscription) buildResultsLocked(req *PublishRequest) []StatusCode {
	if len(req.SubscriptionAcknowledgements) == 0 {
		return nil
	}
	results := make([]StatusCode, len(req.SubscriptionAcknowledgements))
	for i, ack := range req.SubscriptionAcknowledgements {
		if ack.SubscriptionID == s.id {
			if s.retransmit.remove(ack.SequenceNumber) {
				results[i] = Good
			} else {
				results[i] = BadSequenceNumberUnknown
			}
		} else {
			results[i] = statusPending
		}
	}
	return results
}

// AcknowledgeOwn processes one acknowledgement redirected to this
// subscription by the engine (§4.3, "Acks ... redirected to it").
func (s *Subscription) AcknowledgeOwn(seq uint64) StatusCode {
	if s == nil {
		return BadSubscriptionIDInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retransmit.remove(seq) {
		return Good
	}
	return BadSequenceNumberUnknown
}

// buildClosedNoticeResponse constructs the single StatusChangeNotification
// PublishResponse a closed subscription delivers before being discarded
// (§4.5). Acknowledgements targeting this (already-closing) subscription
// are still resolved against its retained retransmission queue.
func (s *Subscription) buildClosedNoticeResponse(now time.Time, req *PublishRequest) *PublishResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.buildResultsLocked(req)
	return &PublishResponse{
		Header:                   ResponseHeader{ServiceResult: Good, RequestHandle: req.RequestHandle, Timestamp: now},
		SubscriptionID:           s.id,
		AvailableSequenceNumbers: s.retransmit.availableSequenceNumbers(),
		MoreNotifications:        false,
		NotificationMessage: NotificationMessage{
			PublishTime:      now,
			NotificationData: []NotificationDataItem{StatusChangeNotification{Status: BadTimeout, SubscriptionID: s.id}},
		},
		Results: results,
	}
}
