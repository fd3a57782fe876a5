// Package engine coordinates the analysis of a single decoded frame or
// segment: resolving capabilities to configured adapters, routing
// image-detection capabilities through the selected execution strategy,
// and always computing the visual summary locally.
package engine

import (
	"context"
	"fmt"
	"image"
	"sync"

	"streamvision/internal/adapters"
	"streamvision/internal/strategy"
	"streamvision/internal/telemetry"
	"streamvision/pkg/models"
)

// Registry is the narrow slice of internal/registry.Registry the engine
// depends on, so tests can supply a fake without wiring a full catalog.
type Registry interface {
	Get(capability models.Capability) (models.Provider, bool)
	ActiveBrands() []models.Brand
}

// CapabilityResult is one entry of analyze_frame's returned map.
type CapabilityResult struct {
	Detections []models.Detection
	Err        error
}

// Engine coordinates adapter construction and dispatch for one process.
// It is safe for concurrent use: adapter construction is memoized behind
// a mutex, and Detect/Analyze calls are handed to the configured
// execution strategy which applies its own reentrancy rules.
type Engine struct {
	registry  Registry
	factories *adapters.Factories
	exec      strategy.Strategy

	mu             sync.Mutex
	imageAdapters  map[models.Capability]adapters.ImageDetector
	videoAdapters  map[models.Capability]adapters.VideoAnalyzer
	configuredFor  map[models.Capability]models.Provider
}

// New constructs an Engine. exec is the execution strategy used for all
// image-detection capabilities; motion analysis always runs in-process
// since temporal adapters are never remoted in this deployment.
func New(registry Registry, factories *adapters.Factories, exec strategy.Strategy) *Engine {
	return &Engine{
		registry:      registry,
		factories:     factories,
		exec:          exec,
		imageAdapters: make(map[models.Capability]adapters.ImageDetector),
		videoAdapters: make(map[models.Capability]adapters.VideoAnalyzer),
		configuredFor: make(map[models.Capability]models.Provider),
	}
}

// Configure instantiates (or re-instantiates, on provider change) the
// adapter for each capability named in providers, via the capability's
// registered factory, and caches it for subsequent Analyze calls.
func (e *Engine) Configure(providers map[models.Capability]models.Provider) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for cap, p := range providers {
		if existing, ok := e.configuredFor[cap]; ok && existing.ID == p.ID {
			continue // already configured for this exact provider
		}
		if cap == models.CapabilityMotionAnalysis {
			analyzer, err := e.factories.BuildVideoAnalyzer(p)
			if err != nil {
				return fmt.Errorf("configure %s: %w", cap, err)
			}
			if old, ok := e.videoAdapters[cap]; ok {
				_ = old.Release()
			}
			e.videoAdapters[cap] = analyzer
			e.configuredFor[cap] = p
			continue
		}
		detector, err := e.factories.BuildImageDetector(p, brandSourceFunc(e.registry.ActiveBrands))
		if err != nil {
			return fmt.Errorf("configure %s: %w", cap, err)
		}
		if old, ok := e.imageAdapters[cap]; ok {
			_ = old.Release()
		}
		e.imageAdapters[cap] = detector
		e.configuredFor[cap] = p
	}
	return nil
}

type brandSourceFunc func() []models.Brand

func (f brandSourceFunc) ActiveBrands() []models.Brand { return f() }

// AnalyzeFrame dispatches each requested provider-driven capability to
// its configured adapter through the execution strategy, and always
// computes the visual summary locally — visual_analysis never appears
// in requested because it has no adapter to misconfigure.
func (e *Engine) AnalyzeFrame(ctx context.Context, img image.Image, requested []models.Capability, threshold float64) (map[models.Capability]CapabilityResult, models.VisualSummary) {
	out := make(map[models.Capability]CapabilityResult, len(requested))
	for _, cap := range requested {
		if cap == models.CapabilityVisualAnalysis {
			continue
		}
		out[cap] = e.dispatchImageCapability(ctx, cap, img, threshold)
	}
	return out, ComputeVisualSummary(img)
}

func (e *Engine) dispatchImageCapability(ctx context.Context, cap models.Capability, img image.Image, threshold float64) CapabilityResult {
	e.mu.Lock()
	detector, ok := e.imageAdapters[cap]
	provider := e.configuredFor[cap]
	e.mu.Unlock()
	if !ok {
		return CapabilityResult{Err: models.NewAnalysisError(models.ErrUnconfiguredCapability, fmt.Errorf("no adapter configured for %s", cap))}
	}

	tagged := strategy.WithCapabilityTag(ctx, strategy.NewCapabilityTag(string(cap), string(provider.ProviderType), provider.ModelIdentifier))

	spanCtx, span := telemetry.StartSpan(tagged, "engine.analyze_frame")
	defer span.End()
	detections, err := e.exec.Execute(spanCtx, detector, img, threshold)
	if err != nil {
		return CapabilityResult{Err: err}
	}
	return CapabilityResult{Detections: detections}
}

// AnalyzeSegment routes temporal capabilities (motion_analysis) to their
// configured video analyzer.
func (e *Engine) AnalyzeSegment(ctx context.Context, segmentPath string, capabilities []models.Capability) map[models.Capability]struct {
	Result models.MotionResult
	Err    error
} {
	out := make(map[models.Capability]struct {
		Result models.MotionResult
		Err    error
	}, len(capabilities))

	for _, cap := range capabilities {
		e.mu.Lock()
		analyzer, ok := e.videoAdapters[cap]
		e.mu.Unlock()
		if !ok {
			out[cap] = struct {
				Result models.MotionResult
				Err    error
			}{Err: models.NewAnalysisError(models.ErrUnconfiguredCapability, fmt.Errorf("no analyzer configured for %s", cap))}
			continue
		}
		spanCtx, span := telemetry.StartSpan(ctx, "engine.analyze_segment")
		result, err := analyzer.Analyze(spanCtx, segmentPath)
		span.End()
		out[cap] = struct {
			Result models.MotionResult
			Err    error
		}{Result: result, Err: err}
	}
	return out
}

// Release frees every cached adapter. Call on shutdown or full reconfigure.
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, d := range e.imageAdapters {
		if err := d.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, a := range e.videoAdapters {
		if err := a.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.imageAdapters = make(map[models.Capability]adapters.ImageDetector)
	e.videoAdapters = make(map[models.Capability]adapters.VideoAnalyzer)
	e.configuredFor = make(map[models.Capability]models.Provider)
	return firstErr
}
