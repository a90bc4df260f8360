package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

var (
	// ErrNotFound is returned by Load when no settings document exists yet.
	ErrNotFound = errors.New("settings not found")
	// ErrStaleSettings is returned by Save when the stored version moved on.
	ErrStaleSettings = errors.New("settings were modified concurrently")
)

// maxUpdateAttempts bounds the read-modify-write retries of Update.
const maxUpdateAttempts = 5

// Repository persists the singleton schedule document.
//
// Save must only succeed when the stored version equals s.Version, and must
// increment s.Version on success. A missing document has version 0.
type Repository interface {
	Load(ctx context.Context) (*domain.ScheduleSettings, error)
	Save(ctx context.Context, s *domain.ScheduleSettings) error
}

// Update loads the settings, applies fn and saves the result, retrying when a
// concurrent writer got there first. An error from fn aborts without saving.
func Update(ctx context.Context, repo Repository, fn func(s *domain.ScheduleSettings) error) (*domain.ScheduleSettings, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		s, err := repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		if err := fn(s); err != nil {
			return nil, err
		}
		err = repo.Save(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrStaleSettings) {
			return nil, fmt.Errorf("failed to save settings: %w", err)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to save settings after %d attempts: %w", maxUpdateAttempts, lastErr)
}

// MemoryRepository keeps the settings document in process memory.
type MemoryRepository struct {
	mu  sync.Mutex
	doc *domain.ScheduleSettings
}

// NewMemoryRepository returns a repository seeded with initial (may be nil).
func NewMemoryRepository(initial *domain.ScheduleSettings) *MemoryRepository {
	return &MemoryRepository{doc: initial.Clone()}
}

func (m *MemoryRepository) Load(_ context.Context) (*domain.ScheduleSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.doc == nil {
		return nil, ErrNotFound
	}
	return m.doc.Clone(), nil
}

func (m *MemoryRepository) Save(_ context.Context, s *domain.ScheduleSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if m.doc != nil {
		stored = m.doc.Version
	}
	if s.Version != stored {
		return ErrStaleSettings
	}

	s.Version++
	m.doc = s.Clone()
	return nil
}
