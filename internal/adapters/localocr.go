package adapters

import (
	"context"
	"image"
	"sync"

	"streamvision/pkg/models"
)

// localOCRDetector is a heuristic, dependency-free stand-in for a local
// OCR engine. Like localObjectDetector it follows the lazy two-phase
// adapter shape: the "model" (a glyph-density threshold table, in a
// real OCR binding) is only acquired on first use.
type localOCRDetector struct {
	mu     sync.Mutex
	loaded bool
}

func newLocalOCRDetector(p models.Provider, _ BrandSource) (ImageDetector, error) {
	return &localOCRDetector{}, nil
}

func (d *localOCRDetector) ensureLoaded() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
}

// Detect looks for regions of high local contrast in the lower third of
// the frame — a crude proxy for caption/lower-third text — and reports
// them as text detections. It never fails on a well-formed frame.
func (d *localOCRDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]models.Detection, error) {
	d.ensureLoaded()

	if img == nil {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, errNilFrame)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, errEmptyFrame)
	}

	lowerThird := image.Rect(bounds.Min.X, bounds.Min.Y+bounds.Dy()*2/3, bounds.Max.X, bounds.Max.Y)
	_, variance := luminanceStats(clipToImage(img, lowerThird))
	if variance < 0.01 {
		return nil, nil // no text-like contrast found; empty, not an error
	}

	confidence := variance * 4
	if confidence > 0.97 {
		confidence = 0.97
	}

	detections := []models.Detection{
		{
			Label:         "text_region",
			Confidence:    confidence,
			BBox:          models.BBox{X: 0.05, Y: 2.0 / 3, Width: 0.9, Height: 0.3},
			DetectionType: models.DetectionText,
		},
	}
	return filterByThreshold(detections, threshold), nil
}

func (d *localOCRDetector) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	return nil
}

// clipToImage wraps img so At() reads are restricted to r, without
// copying pixel data.
func clipToImage(img image.Image, r image.Rectangle) image.Image {
	return &subImage{Image: img, rect: r.Intersect(img.Bounds())}
}

type subImage struct {
	image.Image
	rect image.Rectangle
}

func (s *subImage) Bounds() image.Rectangle { return s.rect }
