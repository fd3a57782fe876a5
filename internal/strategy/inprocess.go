package strategy

import (
	"context"
	"image"
	"sync"

	"streamvision/internal/adapters"
	"streamvision/pkg/models"
)

// InProcess calls the adapter directly in the caller's goroutine. It is
// always available and is the fallback strategy whenever a remote or
// cloud strategy is misconfigured.
type InProcess struct {
	// locks guards calls to adapters that declare themselves
	// non-reentrant (see adapters.Reentrant), serializing Detect calls
	// per adapter instance rather than per strategy.
	mu    sync.Mutex
	locks map[adapters.ImageDetector]*sync.Mutex
	lmu   sync.Mutex
}

// NewInProcess constructs the always-available in-process strategy.
func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[adapters.ImageDetector]*sync.Mutex)}
}

func (s *InProcess) lockFor(adapter adapters.ImageDetector) *sync.Mutex {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	l, ok := s.locks[adapter]
	if !ok {
		l = &sync.Mutex{}
		s.locks[adapter] = l
	}
	return l
}

func (s *InProcess) Execute(ctx context.Context, adapter adapters.ImageDetector, img image.Image, threshold float64) ([]models.Detection, error) {
	reentrant := true
	if r, ok := adapter.(adapters.Reentrant); ok {
		reentrant = r.Reentrant()
	}
	if !reentrant {
		l := s.lockFor(adapter)
		l.Lock()
		defer l.Unlock()
	}
	return adapter.Detect(ctx, img, threshold)
}

func (s *InProcess) IsAvailable(ctx context.Context) bool { return true }

func (s *InProcess) Info() Info { return Info{Name: "in_process"} }

var _ Strategy = (*InProcess)(nil)
