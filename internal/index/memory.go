package index

import (
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// CatalogIndex holds the brand catalog in memory. Sweeps read from it so a
// Postgres outage does not stop auto-check.
type CatalogIndex struct {
	mu         sync.RWMutex
	brands     map[string]domain.Brand           // ID -> Brand
	domains    map[string][]domain.TrackedDomain // BrandID -> domains
	lastReload time.Time
}

func NewCatalogIndex() *CatalogIndex {
	return &CatalogIndex{
		brands:  make(map[string]domain.Brand),
		domains: make(map[string][]domain.TrackedDomain),
	}
}

// Replace swaps the whole catalog. Disabled entries and domains of unknown
// brands are dropped.
func (idx *CatalogIndex) Replace(brands []domain.Brand, domains []domain.TrackedDomain) {
	nextBrands := make(map[string]domain.Brand, len(brands))
	for _, b := range brands {
		if b.Disabled {
			continue
		}
		nextBrands[b.ID] = b
	}

	nextDomains := make(map[string][]domain.TrackedDomain, len(nextBrands))
	for _, d := range domains {
		if d.Disabled {
			continue
		}
		if _, ok := nextBrands[d.BrandID]; !ok {
			continue
		}
		nextDomains[d.BrandID] = append(nextDomains[d.BrandID], d)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.brands = nextBrands
	idx.domains = nextDomains
	idx.lastReload = time.Now()
}

// Brands returns the brands ordered by code.
func (idx *CatalogIndex) Brands() []domain.Brand {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]domain.Brand, 0, len(idx.brands))
	for _, b := range idx.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (idx *CatalogIndex) Brand(id string) (domain.Brand, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b, ok := idx.brands[id]
	return b, ok
}

// Domains returns a copy of every tracked domain.
func (idx *CatalogIndex) Domains() []domain.TrackedDomain {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []domain.TrackedDomain
	for _, ds := range idx.domains {
		out = append(out, ds...)
	}
	return out
}

// BrandCodes maps brand ID to brand code.
func (idx *CatalogIndex) BrandCodes() map[string]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	codes := make(map[string]string, len(idx.brands))
	for id, b := range idx.brands {
		codes[id] = b.Code
	}
	return codes
}

// Lookup builds a fresh matching index over the domains of one brand. It
// returns an empty lookup for unknown brands.
func (idx *CatalogIndex) Lookup(brandID string) *domain.Lookup {
	idx.mu.RLock()
	b, ok := idx.brands[brandID]
	ds := append([]domain.TrackedDomain(nil), idx.domains[brandID]...)
	idx.mu.RUnlock()

	if !ok {
		return domain.BuildLookup(nil, nil)
	}
	return domain.BuildLookup(ds, map[string]string{b.ID: b.Code})
}

// Count returns the number of brands.
func (idx *CatalogIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.brands)
}

// DomainCount returns the number of tracked domains.
func (idx *CatalogIndex) DomainCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := 0
	for _, ds := range idx.domains {
		n += len(ds)
	}
	return n
}

func (idx *CatalogIndex) LastReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastReload
}
