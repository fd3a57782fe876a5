package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/pkg/models"
)

type fakeCatalog struct {
	providers []models.Provider
	brands    []models.Brand
	err       error
}

func (f *fakeCatalog) Providers() ([]models.Provider, error) { return f.providers, f.err }
func (f *fakeCatalog) Brands() ([]models.Brand, error)       { return f.brands, f.err }

func TestReloadPopulatesByCapability(t *testing.T) {
	cat := &fakeCatalog{
		providers: []models.Provider{
			{ID: "p1", ProviderType: models.ProviderLocalObject, Capabilities: []models.Capability{models.CapabilityObjectDetection}, Active: true},
			{ID: "p2", ProviderType: models.ProviderHostedVision, Capabilities: []models.Capability{models.CapabilityLogoDetection}, Active: false},
		},
	}
	r := New(cat)
	require.NoError(t, r.Reload())

	p, ok := r.Get(models.CapabilityObjectDetection)
	require.True(t, ok)
	assert.Equal(t, "p1", p.ID)

	assert.False(t, r.Has(models.CapabilityLogoDetection), "inactive provider must not be registered")
}

func TestReloadRejectsDuplicateCapabilityClaim(t *testing.T) {
	cat := &fakeCatalog{
		providers: []models.Provider{
			{ID: "p1", ProviderType: models.ProviderLocalObject, Capabilities: []models.Capability{models.CapabilityObjectDetection}, Active: true},
			{ID: "p2", ProviderType: models.ProviderHostedVision, Capabilities: []models.Capability{models.CapabilityObjectDetection}, Active: true},
		},
	}
	r := New(cat)
	err := r.Reload()
	assert.ErrorIs(t, err, models.ErrDuplicateProviderCapability)
}

func TestActiveCapabilitiesReflectsLastGoodReload(t *testing.T) {
	cat := &fakeCatalog{
		providers: []models.Provider{
			{ID: "p1", ProviderType: models.ProviderLocalObject, Capabilities: []models.Capability{models.CapabilityObjectDetection}, Active: true},
		},
	}
	r := New(cat)
	require.NoError(t, r.Reload())
	assert.ElementsMatch(t, []models.Capability{models.CapabilityObjectDetection}, r.ActiveCapabilities())
}

func TestReloadFailureRetainsCurrentSnapshot(t *testing.T) {
	cat := &fakeCatalog{
		providers: []models.Provider{
			{ID: "p1", ProviderType: models.ProviderLocalObject, Capabilities: []models.Capability{models.CapabilityObjectDetection}, Active: true},
		},
	}
	r := New(cat)
	require.NoError(t, r.Reload())

	cat.err = errors.New("catalog store unreachable")
	err := r.Reload()
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrConfigReloadFailed, kind)

	// The prior successful snapshot stays live across the failed reload.
	assert.True(t, r.Has(models.CapabilityObjectDetection))
}

func TestActiveBrandsFiltersInactive(t *testing.T) {
	cat := &fakeCatalog{
		brands: []models.Brand{
			{ID: "b1", Name: "Acme", Active: true},
			{ID: "b2", Name: "Old Co", Active: false},
		},
	}
	r := New(cat)
	require.NoError(t, r.Reload())

	active := r.ActiveBrands()
	require.Len(t, active, 1)
	assert.Equal(t, "b1", active[0].ID)
}

func TestEmptyRegistryHasNothing(t *testing.T) {
	r := New(&fakeCatalog{})
	assert.False(t, r.Has(models.CapabilityObjectDetection))
	assert.Empty(t, r.ActiveCapabilities())
}
