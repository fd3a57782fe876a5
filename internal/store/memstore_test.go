package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/pkg/models"
)

func TestPutAnalysisRejectsDuplicateCompositeKey(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	a := models.Analysis{StreamKey: "s1", SegmentPath: "seg1.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()}

	_, err := s.PutAnalysis(ctx, a)
	require.NoError(t, err)

	_, err = s.PutAnalysis(ctx, a)
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrDuplicateSegmentAnalysis, kind)
}

func TestRecentForStreamOrdersMostRecentFirstAndDefaultsToFive(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 7; i++ {
		_, err := s.PutAnalysis(ctx, models.Analysis{
			StreamKey:   "s1",
			SegmentPath: "seg" + string(rune('a'+i)) + ".ts",
			Capability:  models.CapabilityObjectDetection,
			CapturedAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	recent, err := s.RecentForStream(ctx, "s1", "", 0)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.True(t, recent[0].CapturedAt.After(recent[1].CapturedAt))
}

func TestRecentForStreamScopesToSession(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.PutAnalysis(ctx, models.Analysis{StreamKey: "s1", SessionID: "sessA", SegmentPath: "a.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.PutAnalysis(ctx, models.Analysis{StreamKey: "s1", SessionID: "sessB", SegmentPath: "b.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()})
	require.NoError(t, err)

	recent, err := s.RecentForStream(ctx, "s1", "sessA", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a.ts", recent[0].SegmentPath)
}

func TestResetSessionRemovesOnlyMatchingRows(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.PutAnalysis(ctx, models.Analysis{StreamKey: "s1", SessionID: "sessA", SegmentPath: "a.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.PutAnalysis(ctx, models.Analysis{StreamKey: "s1", SessionID: "sessB", SegmentPath: "b.ts", Capability: models.CapabilityObjectDetection, CapturedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.ResetSession(ctx, "s1", "sessA"))

	recent, err := s.RecentForStream(ctx, "s1", "", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "sessB", recent[0].SessionID)
}

func TestDetectionsForUnknownAnalysisReturnsEmpty(t *testing.T) {
	s := NewMemStore()
	dets, err := s.DetectionsFor(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, dets)
}
