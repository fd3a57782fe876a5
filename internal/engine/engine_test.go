package engine

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/internal/adapters"
	"streamvision/internal/strategy"
	"streamvision/pkg/models"
)

type fakeRegistry struct {
	brands []models.Brand
}

func (f *fakeRegistry) Get(models.Capability) (models.Provider, bool) { return models.Provider{}, false }
func (f *fakeRegistry) ActiveBrands() []models.Brand                  { return f.brands }

func checkerImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestAnalyzeFrameDispatchesConfiguredCapability(t *testing.T) {
	e := New(&fakeRegistry{}, adapters.NewFactories(), strategy.NewInProcess())
	require.NoError(t, e.Configure(map[models.Capability]models.Provider{
		models.CapabilityObjectDetection: {ID: "p1", ProviderType: models.ProviderLocalObject},
	}))

	results, visual := e.AnalyzeFrame(context.Background(), checkerImage(), []models.Capability{models.CapabilityObjectDetection}, 0.0)

	require.Contains(t, results, models.CapabilityObjectDetection)
	assert.NoError(t, results[models.CapabilityObjectDetection].Err)
	assert.NotEmpty(t, visual.DominantColors)
}

func TestAnalyzeFrameUnconfiguredCapabilityReportsError(t *testing.T) {
	e := New(&fakeRegistry{}, adapters.NewFactories(), strategy.NewInProcess())

	results, _ := e.AnalyzeFrame(context.Background(), checkerImage(), []models.Capability{models.CapabilityLogoDetection}, 0.5)

	require.Contains(t, results, models.CapabilityLogoDetection)
	kind, ok := models.KindOf(results[models.CapabilityLogoDetection].Err)
	require.True(t, ok)
	assert.Equal(t, models.ErrUnconfiguredCapability, kind)
}

func TestAnalyzeFrameNeverOmitsVisualSummary(t *testing.T) {
	e := New(&fakeRegistry{}, adapters.NewFactories(), strategy.NewInProcess())

	_, visual := e.AnalyzeFrame(context.Background(), checkerImage(), nil, 0.5)
	assert.NotEmpty(t, visual.DominantColors)
	assert.GreaterOrEqual(t, visual.Brightness, 0.0)
	assert.LessOrEqual(t, visual.Brightness, 1.0)
}

func TestComputeVisualSummaryNilImageReturnsSentinel(t *testing.T) {
	assert.Equal(t, models.SentinelVisualSummary(), ComputeVisualSummary(nil))
}

func TestConfigureIsIdempotentForSameProvider(t *testing.T) {
	e := New(&fakeRegistry{}, adapters.NewFactories(), strategy.NewInProcess())
	p := models.Provider{ID: "p1", ProviderType: models.ProviderLocalObject}
	require.NoError(t, e.Configure(map[models.Capability]models.Provider{models.CapabilityObjectDetection: p}))
	require.NoError(t, e.Configure(map[models.Capability]models.Provider{models.CapabilityObjectDetection: p}))

	require.NoError(t, e.Release())
}

func TestAnalyzeSegmentUnconfiguredReportsError(t *testing.T) {
	e := New(&fakeRegistry{}, adapters.NewFactories(), strategy.NewInProcess())
	out := e.AnalyzeSegment(context.Background(), "/no/such/segment.ts", []models.Capability{models.CapabilityMotionAnalysis})
	require.Contains(t, out, models.CapabilityMotionAnalysis)
	kind, ok := models.KindOf(out[models.CapabilityMotionAnalysis].Err)
	require.True(t, ok)
	assert.Equal(t, models.ErrUnconfiguredCapability, kind)
}
