// Package registry is the process-local cache of the active-provider
// configuration per capability. It uses copy-on-reload:
// readers hold an immutable snapshot, writers publish a new snapshot
// atomically via sync/atomic.Pointer, matching the resource-sharing
// policy in the contract here
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"streamvision/pkg/models"
)

// Catalog is the source of truth the registry reloads from — the
// administrative CRUD surface that declares providers and brands is out
// of scope for the core; Catalog is the narrow read
// interface the core depends on instead.
type Catalog interface {
	Providers() ([]models.Provider, error)
	Brands() ([]models.Brand, error)
}

type snapshot struct {
	byCapability map[models.Capability]models.Provider
	byType       map[models.ProviderType][]models.Provider
	brands       []models.Brand
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byCapability: make(map[models.Capability]models.Provider),
		byType:       make(map[models.ProviderType][]models.Provider),
	}
}

// Registry is the process singleton, built as
// an explicitly constructed collaborator per the redesign note in
// the contract here rather than a package-level global.
type Registry struct {
	catalog Catalog

	current atomic.Pointer[snapshot]

	cacheMu    sync.Mutex
	cached     *snapshot
	cachedAt   time.Time
	cacheTTL   time.Duration
}

// New constructs a Registry backed by catalog. The registry starts
// empty; callers must call Reload before Get/Has/ActiveCapabilities
// return anything.
func New(catalog Catalog) *Registry {
	r := &Registry{catalog: catalog, cacheTTL: time.Hour}
	r.current.Store(emptySnapshot())
	return r
}

// Reload refreshes the in-memory maps from the catalog, then mirrors
// them to a shared cache with a one-hour TTL so other workers see
// consistent config between explicit reloads. On failure the current
// in-memory map is retained; if it is empty, the shared cache mirror is
// consulted as a fallback(ConfigReloadFailed).
func (r *Registry) Reload() error {
	providers, err := r.catalog.Providers()
	if err != nil {
		return r.handleReloadFailure(err)
	}
	brands, err := r.catalog.Brands()
	if err != nil {
		return r.handleReloadFailure(err)
	}

	next := emptySnapshot()
	next.brands = brands

	for _, p := range providers {
		if !p.Active {
			continue
		}
		next.byType[p.ProviderType] = append(next.byType[p.ProviderType], p)
		for _, cap := range p.Capabilities {
			if existing, ok := next.byCapability[cap]; ok && existing.ID != p.ID {
				return models.ErrDuplicateProviderCapability
			}
			next.byCapability[cap] = p
		}
	}

	r.current.Store(next)
	r.mirrorToCache(next)
	return nil
}

func (r *Registry) handleReloadFailure(cause error) error {
	// Retain current in-memory snapshot; if it's empty, fall back to the
	// cache mirror so workers aren't left with nothing between reloads.
	if cur := r.current.Load(); cur != nil && len(cur.byCapability) == 0 {
		r.cacheMu.Lock()
		if r.cached != nil && time.Since(r.cachedAt) < r.cacheTTL {
			r.current.Store(r.cached)
		}
		r.cacheMu.Unlock()
	}
	return models.NewAnalysisError(models.ErrConfigReloadFailed, fmt.Errorf("reload provider catalog: %w", cause))
}

func (r *Registry) mirrorToCache(s *snapshot) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cached = s
	r.cachedAt = time.Now()
}

// Get returns the single active provider for a capability, if any.
func (r *Registry) Get(capability models.Capability) (models.Provider, bool) {
	s := r.current.Load()
	p, ok := s.byCapability[capability]
	return p, ok
}

// Has reports whether a capability currently has an active provider.
func (r *Registry) Has(capability models.Capability) bool {
	_, ok := r.Get(capability)
	return ok
}

// ActiveCapabilities returns the set of capabilities whose providers are
// flagged active in the catalog as of the last successful reload.
func (r *Registry) ActiveCapabilities() []models.Capability {
	s := r.current.Load()
	out := make([]models.Capability, 0, len(s.byCapability))
	for cap := range s.byCapability {
		out = append(out, cap)
	}
	return out
}

// ActiveBrands returns the brand catalog as of the last successful
// reload; it implements adapters.BrandSource.
func (r *Registry) ActiveBrands() []models.Brand {
	s := r.current.Load()
	out := make([]models.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		if b.Active {
			out = append(out, b)
		}
	}
	return out
}
