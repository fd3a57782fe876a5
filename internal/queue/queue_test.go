package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/pkg/models"
)

func ev(path string) models.SegmentEvent {
	return models.SegmentEvent{
		SegmentPath: path,
		StreamKey:   "abc",
		EnqueuedAt:  time.Now(),
		EventType:   models.NewSegmentEvent,
		SourceTag:   "test",
	}
}

func TestEnqueueLeaseAck(t *testing.T) {
	q := New()

	n, err := q.Enqueue(ev("abc-0001.ts"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	leased, ok := q.Lease(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "abc-0001.ts", leased.Event.SegmentPath)
	assert.Equal(t, 0, leased.Attempt)

	// No other leaser can take it while the lease is outstanding.
	_, ok = q.Lease(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)

	require.NoError(t, q.Ack(leased.Token))
	assert.Equal(t, 0, q.Length())

	// Ack is idempotent.
	assert.NoError(t, q.Ack(leased.Token))
}

func TestLeaseExpiryRecoversEvent(t *testing.T) {
	now := time.Now()
	clock := now
	q := New(WithLeaseTTL(10*time.Millisecond), WithClock(func() time.Time { return clock }))

	_, err := q.Enqueue(ev("abc-0002.ts"))
	require.NoError(t, err)

	first, ok := q.Lease(context.Background(), time.Second)
	require.True(t, ok)

	// Advance the clock past the lease TTL without acking: a crashed
	// worker's lease expires and the event becomes available again.
	clock = now.Add(20 * time.Millisecond)

	second, ok := q.Lease(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, first.Event.SegmentPath, second.Event.SegmentPath)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestNackDelaysRedelivery(t *testing.T) {
	now := time.Now()
	clock := now
	q := New(WithClock(func() time.Time { return clock }))

	_, err := q.Enqueue(ev("abc-0003.ts"))
	require.NoError(t, err)

	leased, ok := q.Lease(context.Background(), time.Second)
	require.True(t, ok)

	require.NoError(t, q.Nack(leased.Token, 50*time.Millisecond))

	// Immediately after nack, the event is not yet available: attempt
	// count has increased but retry_after hasn't elapsed.
	_, ok = q.Lease(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)

	clock = now.Add(60 * time.Millisecond)
	redelivered, ok := q.Lease(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, redelivered.Attempt)
}

func TestPeekDoesNotLease(t *testing.T) {
	q := New()
	_, err := q.Enqueue(ev("abc-0004.ts"))
	require.NoError(t, err)

	peeked, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "abc-0004.ts", peeked.SegmentPath)

	// Peeking doesn't lease: a subsequent Lease still succeeds.
	_, ok = q.Lease(context.Background(), time.Second)
	assert.True(t, ok)
}

func TestLeaseBlocksUntilTimeoutWhenEmpty(t *testing.T) {
	q := New()
	start := time.Now()
	_, ok := q.Lease(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
