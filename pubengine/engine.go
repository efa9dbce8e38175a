package pubengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oparthasarathy/opcua-publishengine/pubengine/internal/clock"
	"github.com/oparthasarathy/opcua-publishengine/pubengine/internal/diag"
)

// DefaultMaxPublishRequestInQueue is the §6 default request-queue bound.
// DESIGN.md (Resolved Open Questions) resolves the §3/§6 discrepancy: this fixed default
// applies unless EngineOptions.DynamicQueueLimit is set, in which case the
// §3 formula max(subscriptionCount*2, 4) governs instead.
const DefaultMaxPublishRequestInQueue = 100

// DefaultSubscriptionPublishingInterval is the §6 fallback applied to a
// subscription created with a zero or negative interval when the engine
// itself has no configured EngineOptions.DefaultPublishingInterval.
const DefaultSubscriptionPublishingInterval = time.Second

// EngineOptions configures a new Engine.
type EngineOptions struct {
	// MaxPublishRequestInQueue bounds the shared pending-request queue.
	// Zero selects DefaultMaxPublishRequestInQueue, unless DynamicQueueLimit
	// is set.
	MaxPublishRequestInQueue int
	// DynamicQueueLimit switches to the §3 formula
	// max(subscriptionCount*2, 4), recomputed on every OnPublishRequest,
	// instead of the fixed MaxPublishRequestInQueue.
	DynamicQueueLimit bool
	// MinPublishingInterval and MaxPublishingInterval clamp every
	// subscription's interval (§3).
	MinPublishingInterval time.Duration
	MaxPublishingInterval time.Duration
	// DefaultPublishingInterval replaces a subscription's interval when it
	// is created with one that is zero or negative, before clamping. Zero
	// selects DefaultSubscriptionPublishingInterval.
	DefaultPublishingInterval time.Duration
	// Clock supplies Now() for Advance/StartScheduler. Defaults to the
	// system clock.
	Clock clock.Clock
	// Sender receives every completed PublishResponse/ServiceFault.
	Sender ResponseSender
	// Diagnostics receives structured log events for overflow, displacement
	// and expiry conditions (§11). Nil discards them.
	Diagnostics *diag.Logger
}

// DefaultEngineOptions returns the §6 defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		MaxPublishRequestInQueue:  DefaultMaxPublishRequestInQueue,
		MinPublishingInterval:     50 * time.Millisecond,
		MaxPublishingInterval:     24 * time.Hour,
		DefaultPublishingInterval: DefaultSubscriptionPublishingInterval,
		Clock:                     clock.System{},
	}
}

type closedNotice struct {
	sub *Subscription
}

// Engine is the server-side Publish Engine: it owns the shared pending
// PublishRequest queue, every live Subscription, and the single scheduler
// that drives publishing intervals (§2, §4.6).
type Engine struct {
	mu sync.Mutex

	opts EngineOptions

	subs           map[uint32]*Subscription
	creationOrder  map[uint32]uint64
	creationSeq    uint64
	closedPending  []closedNotice
	queue          *publishRequestQueue
	sched          *scheduler
	clock          clock.Clock
	sender         ResponseSender
	diag           *diag.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewEngine constructs an Engine. A zero-value opts.Sender is allowed but
// every completed response is then silently dropped; production callers
// must supply one.
func NewEngine(opts EngineOptions) *Engine {
	if opts.MaxPublishRequestInQueue <= 0 && !opts.DynamicQueueLimit {
		opts.MaxPublishRequestInQueue = DefaultMaxPublishRequestInQueue
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	return &Engine{
		opts:          opts,
		subs:          make(map[uint32]*Subscription),
		creationOrder: make(map[uint32]uint64),
		queue:         newPublishRequestQueue(),
		sched:         newScheduler(),
		clock:         opts.Clock,
		sender:        opts.Sender,
		diag:          opts.Diagnostics,
	}
}

// SetSender replaces the ResponseSender responses and faults are delivered
// through. Transports that bind a fresh connection to an existing engine
// use this instead of reconstructing the engine.
func (e *Engine) SetSender(sender ResponseSender) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sender = sender
}

// AddSubscription registers a Subscription the engine will drive and
// schedules its first tick one publishing interval from now.
func (e *Engine) AddSubscription(sub *Subscription) {
	if e == nil || sub == nil {
		return
	}
	sub.applyDefaultInterval(e.opts.DefaultPublishingInterval)
	sub.clampInterval(e.opts.MinPublishingInterval, e.opts.MaxPublishingInterval)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[sub.ID()] = sub
	e.creationSeq++
	e.creationOrder[sub.ID()] = e.creationSeq
	e.sched.schedule(sub.ID(), e.clock.Now().Add(sub.PublishingInterval()))
}

// RemoveSubscription unregisters a subscription immediately without
// terminating it or queuing a final StatusChangeNotification. Use this to
// drop bookkeeping for a subscription that is being handed off or was never
// fully created; an explicit client DeleteSubscriptions call should use
// TerminateSubscription instead, which delivers the final notice (§5).
func (e *Engine) RemoveSubscription(id uint32) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, id)
	delete(e.creationOrder, id)
	e.sched.remove(id)
}

// TerminateSubscription closes a subscription by explicit request (§5): it
// transitions the subscription to CLOSED, detaches its schedule, and queues
// the final StatusChangeNotification delivery the same way lifetime expiry
// does (§4.5), so the next PublishRequest to arrive carries it. Reports
// whether id named a live subscription.
func (e *Engine) TerminateSubscription(id uint32) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[id]
	if !ok {
		return false
	}
	sub.Terminate()
	delete(e.subs, id)
	delete(e.creationOrder, id)
	e.sched.remove(id)
	e.closedPending = append(e.closedPending, closedNotice{sub: sub})
	e.diagLocked().Info("subscription terminated", map[string]any{"subscriptionId": id})
	e.runLatePassLocked(e.clock.Now())
	return true
}

// GetSubscriptionByID returns the live subscription with id, or nil.
func (e *Engine) GetSubscriptionByID(id uint32) *Subscription {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subs[id]
}

// SubscriptionCount returns the number of live (non-closed-pending)
// subscriptions.
func (e *Engine) SubscriptionCount() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// PendingPublishRequestCount returns the number of queued, undispatched
// PublishRequests.
func (e *Engine) PendingPublishRequestCount() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.len()
}

// PendingClosedSubscriptionCount returns the number of closed subscriptions
// still waiting to deliver their final StatusChangeNotification.
func (e *Engine) PendingClosedSubscriptionCount() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.closedPending)
}

// FindLateSubscriptionsSortedByAge returns every LATE subscription ordered
// oldest-waiting-first: by ascending TimeToExpiration (remaining lifetime
// counter times publishing interval), then by creation order for ties
// (§4.3's tie-break rule).
func (e *Engine) FindLateSubscriptionsSortedByAge() []*Subscription {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lateSubsSortedLocked()
}

func (e *Engine) lateSubsSortedLocked() []*Subscription {
	var late []*Subscription
	for _, sub := range e.subs {
		if sub.State() == Late {
			late = append(late, sub)
		}
	}
	sort.Slice(late, func(i, j int) bool {
		li, lj := late[i].TimeToExpiration(), late[j].TimeToExpiration()
		if li != lj {
			return li < lj
		}
		return e.creationOrder[late[i].ID()] < e.creationOrder[late[j].ID()]
	})
	return late
}

func (e *Engine) queueLimitLocked() int {
	if e.opts.DynamicQueueLimit {
		limit := len(e.subs) * 2
		if limit < 4 {
			limit = 4
		}
		return limit
	}
	return e.opts.MaxPublishRequestInQueue
}

// OnPublishRequest accepts a decoded client PublishRequest. If no
// subscriptions exist at all, it responds immediately with
// BadNoSubscription (§7). Otherwise the request is queued and the engine
// immediately attempts to satisfy any LATE subscription or pending closed
// notice with it (§4.5).
func (e *Engine) OnPublishRequest(req *PublishRequest) {
	if e == nil || req == nil {
		return
	}
	now := e.clock.Now()

	e.mu.Lock()
	if len(e.subs) == 0 && len(e.closedPending) == 0 {
		e.mu.Unlock()
		e.send(nil, &ServiceFault{Header: ResponseHeader{ServiceResult: BadNoSubscription, RequestHandle: req.RequestHandle, Timestamp: now}})
		return
	}

	e.queue.push(req, now)
	limit := e.queueLimitLocked()
	for e.queue.len() > limit {
		displaced, ok := e.queue.popFront()
		if !ok {
			break
		}
		e.diagLocked().Warn("publish request queue full, rejecting oldest request", map[string]any{
			"requestHandle": displaced.request.RequestHandle,
		})
		e.send(nil, &ServiceFault{Header: ResponseHeader{ServiceResult: BadTooManyPublishRequests, RequestHandle: displaced.request.RequestHandle, Timestamp: now}})
	}

	e.runLatePassLocked(now)
	e.mu.Unlock()
}

func (e *Engine) diagLocked() *diag.Logger {
	return e.diag
}

// runLatePassLocked drains the pending-request queue into closed-pending
// notices first, then LATE subscriptions oldest-first, until either runs
// dry. Called with e.mu held.
func (e *Engine) runLatePassLocked(now time.Time) {
	for len(e.closedPending) > 0 {
		entry, ok := e.queue.popFront()
		if !ok {
			return
		}
		notice := e.closedPending[0]
		e.closedPending = e.closedPending[1:]
		resp := notice.sub.buildClosedNoticeResponse(now, entry.request)
		e.resolveForeignAcksLocked(resp, entry.request)
		e.send(resp, nil)
	}

	for {
		late := e.lateSubsSortedLocked()
		if len(late) == 0 {
			return
		}
		entry, ok := e.queue.popFront()
		if !ok {
			return
		}
		resp := late[0].ServeLate(now, entry.request)
		if resp == nil {
			continue
		}
		e.resolveForeignAcksLocked(resp, entry.request)
		e.send(resp, nil)
	}
}

// resolveForeignAcksLocked fills in every statusPending Results slot a
// subscription left behind for an acknowledgement targeting a different
// subscription (§4.3). Called with e.mu held.
func (e *Engine) resolveForeignAcksLocked(resp *PublishResponse, req *PublishRequest) {
	for i, result := range resp.Results {
		if result != statusPending {
			continue
		}
		ack := req.SubscriptionAcknowledgements[i]
		if target, ok := e.subs[ack.SubscriptionID]; ok {
			resp.Results[i] = target.AcknowledgeOwn(ack.SequenceNumber)
		} else {
			resp.Results[i] = BadSubscriptionIDInvalid
		}
		if !resp.Results[i].IsGood() {
			e.diagLocked().Warn("redirected acknowledgement rejected", map[string]any{
				"subscriptionId": ack.SubscriptionID,
				"sequenceNumber": ack.SequenceNumber,
				"error":          NewError(resp.Results[i], ack.SequenceNumber),
			})
		}
	}
}

func (e *Engine) send(resp *PublishResponse, fault *ServiceFault) {
	if e.sender == nil {
		return
	}
	if resp != nil {
		e.sender.SendPublishResponse(resp)
	}
	if fault != nil {
		e.sender.SendServiceFault(fault)
	}
}

// Advance drives every subscription whose scheduled fire time is at or
// before now, delivers timed-out requests as ServiceFaults, and reschedules
// each advanced subscription for its next interval. Tests drive this
// directly against a virtual clock; production code uses StartScheduler
// instead.
func (e *Engine) Advance(now time.Time) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, expired := range e.queue.removeTimedOut(now) {
		e.send(nil, &ServiceFault{Header: ResponseHeader{ServiceResult: BadTimeout, RequestHandle: expired.request.RequestHandle, Timestamp: now}})
	}

	for _, subID := range e.sched.due(now) {
		sub, ok := e.subs[subID]
		if !ok {
			continue
		}
		result := sub.Tick(now, func() (*PublishRequest, time.Time, bool) {
			entry, ok := e.queue.popFront()
			if !ok {
				return nil, time.Time{}, false
			}
			return entry.request, entry.arrivalTime, true
		})
		if result == nil {
			e.sched.schedule(subID, now.Add(sub.PublishingInterval()))
			continue
		}
		if result.Closed {
			delete(e.subs, subID)
			delete(e.creationOrder, subID)
			e.closedPending = append(e.closedPending, closedNotice{sub: sub})
			e.diagLocked().Info("subscription expired", map[string]any{"subscriptionId": subID})
			continue
		}
		if result.Response != nil {
			e.resolveForeignAcksLocked(result.Response, result.ConsumedRequest)
			e.send(result.Response, nil)
		}
		e.sched.schedule(subID, now.Add(sub.PublishingInterval()))
	}

	e.runLatePassLocked(now)
}

// StartScheduler launches a goroutine that calls Advance once the
// scheduler's earliest due subscription fires, per the §4.6/§9 single-timer
// design: the heap, not a fixed poll, governs real-time firing. tick caps
// how long the goroutine ever sleeps, so a queued request's timeoutHint is
// still noticed promptly even when no subscription is due sooner, and so an
// empty schedule doesn't sleep forever. Only one scheduler goroutine may run
// at a time per Engine.
func (e *Engine) StartScheduler(tick time.Duration) {
	if e == nil || tick <= 0 {
		return
	}
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runScheduler(ctx, tick)
}

func (e *Engine) runScheduler(ctx context.Context, tick time.Duration) {
	defer e.wg.Done()
	timer := time.NewTimer(e.nextSleepDuration(tick))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.Advance(e.clock.Now())
			timer.Reset(e.nextSleepDuration(tick))
		}
	}
}

// nextSleepDuration returns how long runScheduler should sleep before its
// next Advance: the time until the scheduler heap's earliest fire time, or
// tick if that's sooner (or the heap is empty). Never returns zero or
// negative so an overdue entry still yields a fresh Timer.
func (e *Engine) nextSleepDuration(tick time.Duration) time.Duration {
	e.mu.Lock()
	at, ok := e.sched.nextFireTime()
	now := e.clock.Now()
	e.mu.Unlock()

	if !ok {
		return tick
	}
	if until := at.Sub(now); until > 0 && until < tick {
		return until
	}
	if at.After(now) {
		return tick
	}
	return time.Nanosecond
}

// Shutdown stops the scheduler goroutine, if running, blocks until it has
// exited, and answers every still-queued PublishRequest with
// ServiceFault{BadSessionClosed} (§5, §7).
func (e *Engine) Shutdown() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.running {
		cancel := e.cancel
		e.running = false
		e.mu.Unlock()
		cancel()
		e.wg.Wait()
		e.mu.Lock()
	}

	now := e.clock.Now()
	for _, entry := range e.queue.drainAll() {
		e.send(nil, &ServiceFault{Header: ResponseHeader{ServiceResult: BadSessionClosed, RequestHandle: entry.request.RequestHandle, Timestamp: now}})
	}
	e.mu.Unlock()
}
