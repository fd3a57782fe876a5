package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/internal/store"
	"streamvision/pkg/models"
)

func TestSubscribeDeliversRecentAnalysesSynchronously(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	_, err := st.PutAnalysis(ctx, models.Analysis{StreamKey: "s1", SegmentPath: "a.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()})
	require.NoError(t, err)

	b := New(st)
	sub := NewSubscriber("sub1")
	require.NoError(t, b.Subscribe(ctx, "s1", "", sub))

	select {
	case msg := <-sub.Send:
		assert.Equal(t, MessageRecentAnalysis, msg.Type)
		assert.Len(t, msg.Analyses, 1)
	default:
		t.Fatal("expected a recent_analysis message on subscribe")
	}

	assert.Equal(t, 1, b.SubscriberCount("s1"))
}

func TestSubscribeToEmptyHistorySendsNothing(t *testing.T) {
	b := New(store.NewMemStore())
	ctx := context.Background()
	sub := NewSubscriber("sub1")
	require.NoError(t, b.Subscribe(ctx, "s1", "", sub))

	select {
	case msg := <-sub.Send:
		t.Fatalf("expected no message for empty history, got %v", msg.Type)
	default:
	}

	assert.Equal(t, 1, b.SubscriberCount("s1"))
}

func TestBroadcastDeliversToAllSubscribersInGroup(t *testing.T) {
	b := New(store.NewMemStore())
	ctx := context.Background()
	s1 := NewSubscriber("a")
	s2 := NewSubscriber("b")
	require.NoError(t, b.Subscribe(ctx, "stream1", "", s1))
	require.NoError(t, b.Subscribe(ctx, "stream1", "", s2))

	b.Broadcast("stream1", Message{Type: MessageAnalysisUpdate, StreamKey: "stream1"})

	m1 := <-s1.Send
	m2 := <-s2.Send
	assert.Equal(t, MessageAnalysisUpdate, m1.Type)
	assert.Equal(t, MessageAnalysisUpdate, m2.Type)
}

func TestBroadcastDropsFullSubscriberWithoutBlocking(t *testing.T) {
	b := New(store.NewMemStore())
	ctx := context.Background()
	sub := NewSubscriber("full")
	require.NoError(t, b.Subscribe(ctx, "s1", "", sub))

	for i := 0; i < subscriberBufferSize; i++ {
		b.Broadcast("s1", Message{Type: MessageAnalysisUpdate, StreamKey: "s1"})
	}
	assert.Equal(t, 1, b.SubscriberCount("s1"))

	// One more publish should overflow the channel and drop the subscriber.
	b.Broadcast("s1", Message{Type: MessageAnalysisUpdate, StreamKey: "s1"})
	assert.Equal(t, 0, b.SubscriberCount("s1"))
}

func TestUnsubscribeRemovesFromGroup(t *testing.T) {
	b := New(store.NewMemStore())
	ctx := context.Background()
	sub := NewSubscriber("a")
	require.NoError(t, b.Subscribe(ctx, "s1", "", sub))

	b.Unsubscribe("s1", "a")
	assert.Equal(t, 0, b.SubscriberCount("s1"))
}

func TestBroadcastToUnknownStreamIsNoop(t *testing.T) {
	b := New(store.NewMemStore())
	assert.NotPanics(t, func() {
		b.Broadcast("nonexistent", Message{Type: MessageAnalysisUpdate})
	})
}
