package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
)

// SettingsRepository stores the settings document as JSON under KeySettings.
// Save uses WATCH/MULTI so a concurrent writer makes it fail with
// settings.ErrStaleSettings instead of being overwritten.
type SettingsRepository struct {
	client *redis.Client
}

func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{client: s.client}
}

func (r *SettingsRepository) Load(ctx context.Context) (*domain.ScheduleSettings, error) {
	data, err := r.client.Get(ctx, KeySettings).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return decodeSettings(data)
}

func (r *SettingsRepository) Save(ctx context.Context, s *domain.ScheduleSettings) error {
	next := s.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx)
		if err != nil {
			return err
		}
		if stored != s.Version {
			return settings.ErrStaleSettings
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, KeySettings, data, 0)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, KeySettings)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return settings.ErrStaleSettings
	case errors.Is(err, settings.ErrStaleSettings):
		return err
	case err != nil:
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.Version = next.Version
	return nil
}

func storedVersion(ctx context.Context, tx *redis.Tx) (int64, error) {
	data, err := tx.Get(ctx, KeySettings).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stored settings: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("failed to decode stored settings: %w", err)
	}
	return head.Version, nil
}

func decodeSettings(data []byte) (*domain.ScheduleSettings, error) {
	var s domain.ScheduleSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}
