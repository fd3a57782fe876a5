// Package queue implements the durable, per-stream FIFO of segment-ready
// events described by the segment analysis pipeline: enqueue, lease,
// ack, nack, with lease expiry as the sole crash-recovery mechanism.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"streamvision/pkg/models"
)

// EventQueue is the contract the worker pool and event sources depend
// on. The in-memory implementation below is the only backend built here;
// the interface leaves room for a durable broker-backed implementation
// without touching callers.
type EventQueue interface {
	Enqueue(event models.SegmentEvent) (int, error)
	Lease(ctx context.Context, timeout time.Duration) (*Leased, bool)
	Ack(token string) error
	Nack(token string, retryAfter time.Duration) error
	Length() int
	Peek() (models.SegmentEvent, bool)
}

// Leased pairs an event with its lease token and attempt count.
type Leased struct {
	Event   models.SegmentEvent
	Token   string
	Attempt int
}

type entry struct {
	event       models.SegmentEvent
	attempt     int
	leaseToken  string
	leaseExpiry time.Time
	leased      bool
	availableAt time.Time // zero = immediately available
}

// Queue is an in-process, lock-protected FIFO of segment events with a
// lease table for crash recovery. An event with an outstanding
// un-expired lease is never handed to a second leaser; an expired lease
// becomes available again. Duplicate delivery is possible by design —
// idempotency is enforced downstream by the result store's uniqueness
// constraint.
type Queue struct {
	mu         sync.Mutex
	items      *list.List // of *entry, head = oldest
	byToken    map[string]*list.Element
	leaseTTL   time.Duration
	notifyCh   chan struct{}
	tokenSeq   uint64
	nowFn      func() time.Time
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithLeaseTTL overrides the default lease duration (30s).
func WithLeaseTTL(d time.Duration) Option {
	return func(q *Queue) { q.leaseTTL = d }
}

// WithClock overrides time.Now, for deterministic tests of lease expiry.
func WithClock(fn func() time.Time) Option {
	return func(q *Queue) { q.nowFn = fn }
}

// New constructs an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		items:    list.New(),
		byToken:  make(map[string]*list.Element),
		leaseTTL: 30 * time.Second,
		notifyCh: make(chan struct{}, 1),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) wake() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// Enqueue appends to the tail and returns the new length.
func (q *Queue) Enqueue(event models.SegmentEvent) (int, error) {
	q.mu.Lock()
	e := &entry{event: event}
	q.items.PushBack(e)
	n := q.items.Len()
	q.mu.Unlock()
	q.wake()
	return n, nil
}

// Lease blocks up to timeout and returns the head event with a lease
// token, expiring any stale leases it encounters along the way.
func (q *Queue) Lease(ctx context.Context, timeout time.Duration) (*Leased, bool) {
	deadline := q.nowFn().Add(timeout)
	for {
		if leased, ok := q.tryLease(); ok {
			return leased, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(minDur(remaining, 100*time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-q.notifyCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (q *Queue) tryLease() (*Leased, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFn()
	for el := q.items.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.leased && now.Before(e.leaseExpiry) {
			continue // outstanding, unexpired lease: skip
		}
		if !e.leased && !e.availableAt.IsZero() && now.Before(e.availableAt) {
			continue // nacked, still within its retry_after delay
		}
		q.tokenSeq++
		token := leaseToken(q.tokenSeq)
		e.leased = true
		e.leaseToken = token
		e.leaseExpiry = now.Add(q.leaseTTL)
		q.byToken[token] = el
		return &Leased{Event: e.event, Token: token, Attempt: e.attempt}, true
	}
	return nil, false
}

func leaseToken(seq uint64) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 16)
	for i := range b {
		b[i] = hex[(seq>>(uint(i)*4))&0xf]
	}
	return string(b)
}

// Ack removes the leased event; idempotent for an already-acked token.
func (q *Queue) Ack(token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.byToken[token]
	if !ok {
		return nil
	}
	delete(q.byToken, token)
	q.items.Remove(el)
	return nil
}

// Nack returns the event to the head with an increased attempt count.
// When retryAfter is positive the event is not leasable again until
// that much time has passed.
func (q *Queue) Nack(token string, retryAfter time.Duration) error {
	q.mu.Lock()
	el, ok := q.byToken[token]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.byToken, token)
	e := el.Value.(*entry)
	e.leased = false
	e.attempt++
	if retryAfter > 0 {
		e.availableAt = q.nowFn().Add(retryAfter)
	} else {
		e.availableAt = time.Time{}
	}
	q.items.MoveToFront(el)
	q.mu.Unlock()

	if retryAfter > 0 {
		time.AfterFunc(retryAfter, q.wake)
	} else {
		q.wake()
	}
	return nil
}

// Length returns the current size, consistent with recent enqueues.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Peek returns the next event without leasing it.
func (q *Queue) Peek() (models.SegmentEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return models.SegmentEvent{}, false
	}
	return q.items.Front().Value.(*entry).event, true
}

var _ EventQueue = (*Queue)(nil)
