package index

import (
	"sync"
	"testing"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

func sampleCatalog() ([]domain.Brand, []domain.TrackedDomain) {
	brands := []domain.Brand{
		{ID: "b2", Code: "GLOBEX", Name: "Globex"},
		{ID: "b1", Code: "ACME", Name: "Acme"},
		{ID: "b3", Code: "GONE", Name: "Gone", Disabled: true},
	}
	domains := []domain.TrackedDomain{
		{ID: "d1", BrandID: "b1", RawDomain: "acme.com"},
		{ID: "d2", BrandID: "b1", RawDomain: "shop.acme.com"},
		{ID: "d3", BrandID: "b2", RawDomain: "globex.com"},
		{ID: "d4", BrandID: "b3", RawDomain: "gone.com"},
		{ID: "d5", BrandID: "b1", RawDomain: "old.acme.com", Disabled: true},
		{ID: "d6", BrandID: "missing", RawDomain: "orphan.com"},
	}
	return brands, domains
}

func TestNewCatalogIndex(t *testing.T) {
	idx := NewCatalogIndex()
	if idx.Count() != 0 || len(idx.Brands()) != 0 {
		t.Error("NewCatalogIndex() should start empty")
	}
	if !idx.LastReload().IsZero() {
		t.Error("LastReload() should be zero before the first Replace")
	}
}

func TestReplace(t *testing.T) {
	idx := NewCatalogIndex()
	idx.Replace(sampleCatalog())

	if idx.Count() != 2 {
		t.Errorf("Count() = %d, want 2", idx.Count())
	}
	if idx.DomainCount() != 3 {
		t.Errorf("DomainCount() = %d, want 3", idx.DomainCount())
	}
	if idx.LastReload().IsZero() {
		t.Error("LastReload() not set")
	}

	brands := idx.Brands()
	if brands[0].Code != "ACME" || brands[1].Code != "GLOBEX" {
		t.Errorf("Brands() not ordered by code: %+v", brands)
	}

	codes := idx.BrandCodes()
	if codes["b1"] != "ACME" || codes["b2"] != "GLOBEX" {
		t.Errorf("BrandCodes() = %v", codes)
	}
	if _, ok := idx.Brand("b3"); ok {
		t.Error("disabled brand should not be indexed")
	}
}

func TestReplaceOverwrites(t *testing.T) {
	idx := NewCatalogIndex()
	idx.Replace(sampleCatalog())
	idx.Replace([]domain.Brand{{ID: "b9", Code: "NEW"}}, nil)

	if idx.Count() != 1 {
		t.Errorf("Count() = %d, want 1", idx.Count())
	}
	if idx.DomainCount() != 0 {
		t.Errorf("DomainCount() = %d, want 0", idx.DomainCount())
	}
}

func TestLookupIsPerBrand(t *testing.T) {
	idx := NewCatalogIndex()
	idx.Replace(sampleCatalog())

	acme := idx.Lookup("b1")
	if acme.Len() != 2 {
		t.Errorf("Lookup(b1).Len() = %d, want 2", acme.Len())
	}
	if m := domain.Classify("globex.com", acme); m.Badge() != domain.BadgeUnknown {
		t.Error("another brand's domain matched in the acme lookup")
	}
	if m := domain.Classify("shop.acme.com", acme); m.Badge() != domain.BadgeOwn {
		t.Error("shop.acme.com should be OWN")
	}

	if idx.Lookup("unknown").Len() != 0 {
		t.Error("unknown brand should yield an empty lookup")
	}
}

func TestConcurrentAccess(t *testing.T) {
	idx := NewCatalogIndex()
	brands, domains := sampleCatalog()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			idx.Replace(brands, domains)
		}()
		go func() {
			defer wg.Done()
			_ = idx.Brands()
			_ = idx.Lookup("b1")
			_ = idx.Count()
		}()
	}
	wg.Wait()

	if idx.Count() != 2 {
		t.Errorf("Count() = %d, want 2", idx.Count())
	}
}

func TestDomainsReturnsSnapshot(t *testing.T) {
	idx := NewCatalogIndex()
	idx.Replace(sampleCatalog())

	ds := idx.Domains()
	ds[0].RawDomain = "mutated.com"

	for _, d := range idx.Domains() {
		if d.RawDomain == "mutated.com" {
			t.Error("Domains() leaked internal state")
		}
	}
}
