package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/index"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

type fakeCatalogStore struct {
	brands    []domain.Brand
	domains   []domain.TrackedDomain
	err       error
	saveCalls int
}

func (f *fakeCatalogStore) UpsertCatalog(_ context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error {
	f.saveCalls++
	if f.err != nil {
		return f.err
	}
	f.brands, f.domains = brands, domains
	return nil
}

func (f *fakeCatalogStore) SaveCatalog(ctx context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error {
	return f.UpsertCatalog(ctx, brands, domains)
}

func (f *fakeCatalogStore) LoadCatalog(context.Context) ([]domain.Brand, []domain.TrackedDomain, error) {
	return f.brands, f.domains, f.err
}

func (f *fakeCatalogStore) ListBrands(context.Context) ([]domain.Brand, error) {
	return f.brands, f.err
}

func (f *fakeCatalogStore) ListTrackedDomains(context.Context) ([]domain.TrackedDomain, error) {
	return f.domains, f.err
}

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create catalog file: %v", err)
	}
	return path
}

func TestCatalogReloaderReload(t *testing.T) {
	path := writeCatalog(t, `brands:
  - code: BRAND
    name: Brand Inc
    domains: [shop.brand.com, brand]
  - code: OTHER
    name: Other
    domains: [other.com]
`)
	db := &fakeCatalogStore{err: errors.New("postgres down")}
	snapshot := &fakeCatalogStore{}
	idx := index.NewCatalogIndex()

	cr := NewCatalogReloader(path, db, snapshot, idx, logger.New("error", false), 0, nil)
	if err := cr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if idx.Count() != 2 || idx.DomainCount() != 3 {
		t.Errorf("index has %d brands, %d domains, want 2 and 3", idx.Count(), idx.DomainCount())
	}
	if db.saveCalls != 1 {
		t.Errorf("postgres upserts = %d, want 1", db.saveCalls)
	}
	if len(snapshot.brands) != 2 {
		t.Errorf("snapshot brands = %d, want 2", len(snapshot.brands))
	}
}

func TestCatalogReloaderMissingFile(t *testing.T) {
	idx := index.NewCatalogIndex()
	cr := NewCatalogReloader("/nonexistent/catalog.yaml", nil, nil, idx, logger.New("error", false), 0, nil)

	if err := cr.Reload(context.Background()); err == nil {
		t.Error("Reload() should fail for a missing file")
	}
	if idx.Count() != 0 {
		t.Error("index should stay empty")
	}
}

func TestCatalogSyncer(t *testing.T) {
	dbCatalog := &fakeCatalogStore{
		brands:  []domain.Brand{{ID: "b1", Code: "DB"}},
		domains: []domain.TrackedDomain{{ID: "d1", BrandID: "b1", RawDomain: "db.com"}},
	}
	snapCatalog := func() *fakeCatalogStore {
		return &fakeCatalogStore{brands: []domain.Brand{{ID: "b2", Code: "SNAP"}}}
	}

	tests := []struct {
		name     string
		db       *fakeCatalogStore
		snapshot *fakeCatalogStore
		wantCode string
		wantErr  bool
	}{
		{name: "postgres wins", db: dbCatalog, snapshot: snapCatalog(), wantCode: "DB"},
		{name: "postgres down", db: &fakeCatalogStore{err: errors.New("down")}, snapshot: snapCatalog(), wantCode: "SNAP"},
		{name: "postgres empty", db: &fakeCatalogStore{}, snapshot: snapCatalog(), wantCode: "SNAP"},
		{name: "nothing anywhere", db: &fakeCatalogStore{err: errors.New("down")}, snapshot: &fakeCatalogStore{}, wantCode: "KEEP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := index.NewCatalogIndex()
			idx.Replace([]domain.Brand{{ID: "b0", Code: "KEEP"}}, nil)

			cs := NewCatalogSyncer(tt.db, tt.snapshot, idx, logger.New("error", false))
			err := cs.Sync(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Sync() error = %v, wantErr %v", err, tt.wantErr)
			}

			brands := idx.Brands()
			if len(brands) != 1 || brands[0].Code != tt.wantCode {
				t.Errorf("index brands = %+v, want %s", brands, tt.wantCode)
			}
		})
	}
}
