// Package adapters implements the per-capability detection contracts:
// image detectors (object/logo/text) and video analyzers (motion).
// Adapters never throw out of Detect/Analyze — internal failures are
// reported through the returned error but always paired with a safe
// zero-value result
package adapters

import (
	"context"
	"image"

	"streamvision/pkg/models"
)

// ImageDetector is the contract for object, logo and text detection:
// decoded RGB frame in, normalized bounding boxes out, already filtered
// by confidence_threshold.
type ImageDetector interface {
	Detect(ctx context.Context, img image.Image, threshold float64) ([]models.Detection, error)
	// Release frees any model memory held by the adapter. Idempotent.
	Release() error
}

// VideoAnalyzer is the contract for temporal capabilities (motion):
// segment path in, aggregate motion features out.
type VideoAnalyzer interface {
	Analyze(ctx context.Context, segmentPath string) (models.MotionResult, error)
	Release() error
}

// Reentrant is implemented by adapters that are safe for concurrent
// Detect/Analyze calls. Adapters that don't implement it are treated as
// reentrant; only an adapter whose Reentrant() returns false has its
// calls serialized by the in-process strategy.
type Reentrant interface {
	Reentrant() bool
}

// BrandSource supplies the active prompt vocabulary for the
// text-prompted logo classifier. Reading brands at inference time
// (rather than caching them at construction) means a newly activated
// brand takes effect on the very next segment.
type BrandSource interface {
	ActiveBrands() []models.Brand
}

// ImageDetectorFactory constructs an ImageDetector from a provider
// configuration record. Construction only records configuration —
// adapters that hold heavyweight models defer loading to first use.
type ImageDetectorFactory func(p models.Provider, brands BrandSource) (ImageDetector, error)

// VideoAnalyzerFactory constructs a VideoAnalyzer from a provider
// configuration record.
type VideoAnalyzerFactory func(p models.Provider) (VideoAnalyzer, error)

// Factories is the compile-time-extensible set of registered adapter
// constructors, keyed by ProviderType. New provider types are added by
// registering a factory here; no runtime type-name inspection is used
// anywhere downstream — the remote execution strategy tags capabilities
// explicitly through context rather than reflecting on adapter types.
type Factories struct {
	imageFactories map[models.ProviderType]ImageDetectorFactory
	videoFactories map[models.ProviderType]VideoAnalyzerFactory
}

// NewFactories constructs the registry with the built-in provider types
// pre-registered.
func NewFactories() *Factories {
	f := &Factories{
		imageFactories: make(map[models.ProviderType]ImageDetectorFactory),
		videoFactories: make(map[models.ProviderType]VideoAnalyzerFactory),
	}
	f.RegisterImageFactory(models.ProviderHostedVision, newHostedVisionDetector)
	f.RegisterImageFactory(models.ProviderLocalObject, newLocalObjectDetector)
	f.RegisterImageFactory(models.ProviderLocalOCR, newLocalOCRDetector)
	f.RegisterImageFactory(models.ProviderPromptLogoClassifier, newPromptLogoClassifier)
	f.RegisterVideoFactory(models.ProviderLocalMotion, newLocalMotionAnalyzer)
	return f
}

// RegisterImageFactory registers (or overrides) the constructor for an
// image-detector provider type.
func (f *Factories) RegisterImageFactory(t models.ProviderType, fn ImageDetectorFactory) {
	f.imageFactories[t] = fn
}

// RegisterVideoFactory registers (or overrides) the constructor for a
// video-analyzer provider type.
func (f *Factories) RegisterVideoFactory(t models.ProviderType, fn VideoAnalyzerFactory) {
	f.videoFactories[t] = fn
}

// BuildImageDetector constructs the image detector for p's provider type.
func (f *Factories) BuildImageDetector(p models.Provider, brands BrandSource) (ImageDetector, error) {
	fn, ok := f.imageFactories[p.ProviderType]
	if !ok {
		return nil, unknownProviderType(p.ProviderType)
	}
	return fn(p, brands)
}

// BuildVideoAnalyzer constructs the video analyzer for p's provider type.
func (f *Factories) BuildVideoAnalyzer(p models.Provider) (VideoAnalyzer, error) {
	fn, ok := f.videoFactories[p.ProviderType]
	if !ok {
		return nil, unknownProviderType(p.ProviderType)
	}
	return fn(p)
}

type errUnknownProviderType struct{ t models.ProviderType }

func (e errUnknownProviderType) Error() string {
	return "adapters: no factory registered for provider type " + string(e.t)
}

func unknownProviderType(t models.ProviderType) error { return errUnknownProviderType{t: t} }

// filterByThreshold drops detections with confidence below threshold,
// the one behavior every image adapter must apply before returning.
func filterByThreshold(detections []models.Detection, threshold float64) []models.Detection {
	out := make([]models.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}
