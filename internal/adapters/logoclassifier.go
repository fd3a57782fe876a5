package adapters

import (
	"context"
	"image"
	"math"
	"strings"
	"sync"

	"streamvision/pkg/models"
)

// promptLogoClassifier is a text-prompted logo classifier: at inference
// time it reads the active Brand catalog to build its prompt vocabulary.
// It holds no heavyweight model state of its own here (a real
// CLIP-style binding would cache text-embedding tensors per prompt,
// which is exactly what Release would free).
type promptLogoClassifier struct {
	brands BrandSource

	mu        sync.Mutex
	promptSet map[string]struct{} // cached embeddings stand-in
}

func newPromptLogoClassifier(p models.Provider, brands BrandSource) (ImageDetector, error) {
	return &promptLogoClassifier{brands: brands}, nil
}

func (c *promptLogoClassifier) ensurePrompts() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := make(map[string]struct{})
	if c.brands != nil {
		for _, b := range c.brands.ActiveBrands() {
			for _, term := range b.SearchTerms {
				set[strings.ToLower(term)] = struct{}{}
			}
		}
	}
	c.promptSet = set
	return set
}

// Detect scores each active brand's prompt vocabulary against a coarse
// color-histogram signature of the frame. This is a deliberately simple
// stand-in for a text-image similarity model: it is enough to exercise
// the capability's contract (confidence filtering, normalized bboxes)
// without a real classifier dependency.
func (c *promptLogoClassifier) Detect(ctx context.Context, img image.Image, threshold float64) ([]models.Detection, error) {
	prompts := c.ensurePrompts()
	if len(prompts) == 0 {
		return nil, nil // no active brands to prompt against
	}
	if img == nil {
		return nil, models.NewAnalysisError(models.ErrAdapterTransient, errNilFrame)
	}

	mean, variance := luminanceStats(img)
	detections := make([]models.Detection, 0, len(prompts))
	for term := range prompts {
		confidence := scorePrompt(term, mean, variance)
		detections = append(detections, models.Detection{
			Label:         term,
			Confidence:    confidence,
			BBox:          models.BBox{X: 0.2, Y: 0.2, Width: 0.3, Height: 0.2},
			DetectionType: models.DetectionLogo,
		})
	}
	return filterByThreshold(detections, threshold), nil
}

func (c *promptLogoClassifier) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptSet = nil
	return nil
}

// scorePrompt derives a deterministic, bounded pseudo-similarity score
// from the prompt text and the frame's luminance signature so repeated
// calls on the same frame are reproducible in tests.
func scorePrompt(term string, mean, variance float64) float64 {
	var h float64
	for i, r := range term {
		h += float64(r) * float64(i+1)
	}
	frac := math.Mod(h, 101) / 101
	score := 0.3 + 0.4*frac + 0.2*mean + 0.1*variance
	if score > 0.99 {
		score = 0.99
	}
	return score
}
