package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"streamvision/pkg/models"
)

// MemStore is an in-process Store, used in tests and for running the
// pipeline without a configured Postgres backend.
type MemStore struct {
	mu      sync.Mutex
	byID    map[string]models.Analysis
	byKey   map[string]string // "stream_key|segment_path|capability" -> id
	order   []string          // insertion order of ids
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:  make(map[string]models.Analysis),
		byKey: make(map[string]string),
	}
}

func dedupeKey(streamKey, segmentPath string, capability models.Capability) string {
	return streamKey + "|" + segmentPath + "|" + string(capability)
}

func (s *MemStore) PutAnalysis(ctx context.Context, a models.Analysis) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupeKey(a.StreamKey, a.SegmentPath, a.Capability)
	if _, exists := s.byKey[key]; exists {
		return "", models.NewAnalysisError(models.ErrDuplicateSegmentAnalysis,
			fmt.Errorf("analysis already recorded for %s/%s/%s", a.StreamKey, a.SegmentPath, a.Capability))
	}

	a.ID = uuid.NewString()
	s.byID[a.ID] = a
	s.byKey[key] = a.ID
	s.order = append(s.order, a.ID)
	return a.ID, nil
}

func (s *MemStore) RecentForStream(ctx context.Context, streamKey, sessionID string, n int) ([]models.Analysis, error) {
	if n <= 0 {
		n = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []models.Analysis
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.byID[s.order[i]]
		if a.StreamKey != streamKey {
			continue
		}
		if sessionID != "" && a.SessionID != sessionID {
			continue
		}
		matches = append(matches, a)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CapturedAt.After(matches[j].CapturedAt)
	})

	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func (s *MemStore) DetectionsFor(ctx context.Context, analysisID string) ([]models.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[analysisID]
	if !ok {
		return nil, nil
	}
	return a.Detections, nil
}

func (s *MemStore) ResetSession(ctx context.Context, streamKey, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []string
	for _, id := range s.order {
		a := s.byID[id]
		if a.StreamKey == streamKey && a.SessionID == sessionID {
			delete(s.byID, id)
			delete(s.byKey, dedupeKey(a.StreamKey, a.SegmentPath, a.Capability))
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

var _ Store = (*MemStore)(nil)
