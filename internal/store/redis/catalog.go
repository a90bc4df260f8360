package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// catalogEntry is the snapshot of one brand with its domains.
type catalogEntry struct {
	Brand   domain.Brand           `json:"brand"`
	Domains []domain.TrackedDomain `json:"domains"`
}

// SaveCatalog replaces the catalog snapshot. Brands missing from the new
// catalog are removed from the snapshot.
func (s *Store) SaveCatalog(ctx context.Context, brands []domain.Brand, domains []domain.TrackedDomain) error {
	byBrand := make(map[string][]domain.TrackedDomain, len(brands))
	for _, d := range domains {
		byBrand[d.BrandID] = append(byBrand[d.BrandID], d)
	}

	previous, err := s.client.SMembers(ctx, KeyAllBrands).Result()
	if err != nil {
		return fmt.Errorf("failed to get snapshot brand ids: %w", err)
	}

	keep := make(map[string]bool, len(brands))
	pipe := s.client.TxPipeline()
	for _, b := range brands {
		keep[b.ID] = true
		data, err := json.Marshal(catalogEntry{Brand: b, Domains: byBrand[b.ID]})
		if err != nil {
			return fmt.Errorf("failed to marshal brand %s: %w", b.Code, err)
		}
		pipe.Set(ctx, BrandKey(b.ID), data, 0)
		pipe.SAdd(ctx, KeyAllBrands, b.ID)
	}
	for _, id := range previous {
		if !keep[id] {
			pipe.Del(ctx, BrandKey(id))
			pipe.SRem(ctx, KeyAllBrands, id)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save catalog snapshot: %w", err)
	}
	return nil
}

// LoadCatalog returns the snapshot, brands ordered by code. Entries that
// vanished or cannot be decoded are skipped.
func (s *Store) LoadCatalog(ctx context.Context) ([]domain.Brand, []domain.TrackedDomain, error) {
	ids, err := s.client.SMembers(ctx, KeyAllBrands).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get snapshot brand ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Brand{}, []domain.TrackedDomain{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.Get(ctx, BrandKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}

	entries := make([]catalogEntry, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var e catalogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Brand.Code < entries[j].Brand.Code })

	brands := make([]domain.Brand, 0, len(entries))
	var domains []domain.TrackedDomain
	for _, e := range entries {
		brands = append(brands, e.Brand)
		domains = append(domains, e.Domains...)
	}
	return brands, domains, nil
}
