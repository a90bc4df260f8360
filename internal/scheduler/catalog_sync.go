package scheduler

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/index"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// CatalogSource is the authoritative catalog store.
type CatalogSource interface {
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListTrackedDomains(ctx context.Context) ([]domain.TrackedDomain, error)
}

// CatalogSyncer fills the memory index from the database, falling back to the
// Redis snapshot when the database is unreachable or empty.
type CatalogSyncer struct {
	db       CatalogSource
	snapshot CatalogSnapshot
	index    *index.CatalogIndex
	logger   logger.Logger
}

func NewCatalogSyncer(
	db CatalogSource,
	snapshot CatalogSnapshot,
	idx *index.CatalogIndex,
	log logger.Logger,
) *CatalogSyncer {
	return &CatalogSyncer{
		db:       db,
		snapshot: snapshot,
		index:    idx,
		logger:   log,
	}
}

// Sync replaces the index with the stored catalog. An empty catalog never
// replaces a populated index.
func (cs *CatalogSyncer) Sync(ctx context.Context) error {
	cs.logger.Debug("syncing catalog to memory")

	brands, domains, dbErr := cs.fromDB(ctx)
	if dbErr == nil && len(brands) > 0 {
		cs.index.Replace(brands, domains)
		if cs.snapshot != nil {
			if err := cs.snapshot.SaveCatalog(ctx, brands, domains); err != nil {
				cs.logger.Warn("failed to refresh catalog snapshot", logger.Error(err))
			}
		}
		cs.logger.Debug("synced catalog from postgres",
			logger.Int("brands", len(brands)),
			logger.Int("domains", len(domains)))
		return nil
	}
	if dbErr != nil {
		cs.logger.Warn("failed to read catalog from postgres, trying redis snapshot",
			logger.Error(dbErr))
	}

	if cs.snapshot == nil {
		return dbErr
	}
	brands, domains, err := cs.snapshot.LoadCatalog(ctx)
	if err != nil {
		if dbErr != nil {
			return fmt.Errorf("failed to sync catalog: %w", dbErr)
		}
		return fmt.Errorf("failed to load catalog snapshot: %w", err)
	}
	if len(brands) == 0 {
		cs.logger.Info("no catalog found in postgres or redis")
		return dbErr
	}

	cs.index.Replace(brands, domains)
	cs.logger.Info("synced catalog from redis snapshot",
		logger.Int("brands", len(brands)),
		logger.Int("domains", len(domains)))
	return nil
}

func (cs *CatalogSyncer) fromDB(ctx context.Context) ([]domain.Brand, []domain.TrackedDomain, error) {
	if cs.db == nil {
		return nil, nil, nil
	}
	brands, err := cs.db.ListBrands(ctx)
	if err != nil {
		return nil, nil, err
	}
	domains, err := cs.db.ListTrackedDomains(ctx)
	if err != nil {
		return nil, nil, err
	}
	return brands, domains, nil
}
