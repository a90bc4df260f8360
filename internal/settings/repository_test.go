package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// racingRepo lets another writer win the first Save.
type racingRepo struct {
	*MemoryRepository
	raced bool
}

func (r *racingRepo) Save(ctx context.Context, s *domain.ScheduleSettings) error {
	if !r.raced {
		r.raced = true
		other, _ := r.MemoryRepository.Load(ctx)
		other.Backup.LastError = "written by someone else"
		if err := r.MemoryRepository.Save(ctx, other); err != nil {
			return err
		}
	}
	return r.MemoryRepository.Save(ctx, s)
}

func TestMemoryRepositoryVersioning(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	if _, err := repo.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() on empty repository error = %v, want %v", err, ErrNotFound)
	}

	s := &domain.ScheduleSettings{IntervalMinutes: 30}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if s.Version != 1 {
		t.Errorf("Version after first save = %d, want 1", s.Version)
	}

	stale := &domain.ScheduleSettings{Version: 0}
	if err := repo.Save(ctx, stale); !errors.Is(err, ErrStaleSettings) {
		t.Errorf("Save() with stale version error = %v, want %v", err, ErrStaleSettings)
	}

	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	loaded.IntervalMinutes = 15
	if got, _ := repo.Load(ctx); got.IntervalMinutes != 30 {
		t.Errorf("Load() returned shared state, IntervalMinutes = %d, want 30", got.IntervalMinutes)
	}
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepo{MemoryRepository: NewMemoryRepository(&domain.ScheduleSettings{})}

	calls := 0
	got, err := Update(ctx, repo, func(s *domain.ScheduleSettings) error {
		calls++
		s.ActiveKeyCursor++
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("Update() applied fn %d times, want 2", calls)
	}
	if got.ActiveKeyCursor != 1 {
		t.Errorf("ActiveKeyCursor = %d, want 1", got.ActiveKeyCursor)
	}
	if got.Backup.LastError != "written by someone else" {
		t.Errorf("Update() lost the concurrent write")
	}
}

func TestUpdateAbortsOnFnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(&domain.ScheduleSettings{IntervalMinutes: 60})
	boom := errors.New("boom")

	_, err := Update(ctx, repo, func(s *domain.ScheduleSettings) error {
		s.IntervalMinutes = 15
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want %v", err, boom)
	}
	if s, _ := repo.Load(ctx); s.IntervalMinutes != 60 || s.Version != 0 {
		t.Errorf("Update() saved despite fn error: %+v", s)
	}
}
