package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/index"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/sources/catalog"
)

// CatalogWriter persists the catalog. Rows missing from the input are
// disabled, never deleted.
type CatalogWriter interface {
	UpsertCatalog(ctx context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error
}

// CatalogSnapshot is a secondary copy of the catalog used to warm the index
// when the database has none.
type CatalogSnapshot interface {
	SaveCatalog(ctx context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error
	LoadCatalog(ctx context.Context) ([]domain.Brand, []domain.TrackedDomain, error)
}

// CatalogReloader handles periodic reloading of the catalog file
type CatalogReloader struct {
	loader        *catalog.Loader
	mapper        *catalog.Mapper
	db            CatalogWriter
	snapshot      CatalogSnapshot
	index         *index.CatalogIndex
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

func NewCatalogReloader(
	catalogFile string,
	db CatalogWriter,
	snapshot CatalogSnapshot,
	idx *index.CatalogIndex,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *CatalogReloader {
	return &CatalogReloader{
		loader:        catalog.NewLoader(catalogFile),
		mapper:        catalog.NewMapper(),
		db:            db,
		snapshot:      snapshot,
		index:         idx,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the file once, then reloads it periodically or on demand.
func (cr *CatalogReloader) Start(ctx context.Context) error {
	if err := cr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	ticker := time.NewTicker(cr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cr.Reload(ctx); err != nil {
					cr.logger.Error("failed to reload catalog",
						logger.Error(err))
				}
			case <-cr.manualTrigger:
				cr.logger.Info("manual catalog reload triggered")
				if err := cr.Reload(ctx); err != nil {
					cr.logger.Error("failed to reload catalog",
						logger.Error(err))
				}
			case <-cr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (cr *CatalogReloader) Stop() {
	close(cr.stopCh)
}

// Reload reads the file and pushes it to the database, the snapshot and the
// memory index. Store failures are logged; the index is always updated.
func (cr *CatalogReloader) Reload(ctx context.Context) error {
	cr.logger.Info("reloading catalog", logger.String("file", cr.loader.Path()))

	file, err := cr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	brands, domains, err := cr.mapper.Map(file)
	if err != nil {
		return fmt.Errorf("failed to map catalog: %w", err)
	}

	cr.logger.Info("loaded catalog",
		logger.Int("brands", len(brands)),
		logger.Int("domains", len(domains)))

	if cr.db != nil {
		if err := cr.db.UpsertCatalog(ctx, brands, domains); err != nil {
			cr.logger.Warn("failed to save catalog to postgres",
				logger.Error(err))
		}
	}

	if cr.snapshot != nil {
		if err := cr.snapshot.SaveCatalog(ctx, brands, domains); err != nil {
			cr.logger.Warn("failed to save catalog snapshot to redis",
				logger.Error(err))
		}
	}

	cr.index.Replace(brands, domains)
	return nil
}
