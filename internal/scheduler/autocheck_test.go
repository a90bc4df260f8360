package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/index"
	"github.com/MrSnakeDoc/serpwatch/internal/keypool"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
)

var wib = time.FixedZone("WIB", 7*60*60)

type searchFunc func(ctx context.Context, apiKey, query string) ([]domain.SerpItem, error)

func (f searchFunc) Search(ctx context.Context, apiKey, query string) ([]domain.SerpItem, error) {
	return f(ctx, apiKey, query)
}

type memRuns struct {
	mu      sync.Mutex
	checks  []domain.CheckRun
	backups []domain.BackupRun
}

func (m *memRuns) InsertCheckRun(_ context.Context, run domain.CheckRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, run)
	return nil
}

func (m *memRuns) InsertBackupRun(_ context.Context, run domain.BackupRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = append(m.backups, run)
	return nil
}

func (m *memRuns) checkRuns() []domain.CheckRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CheckRun(nil), m.checks...)
}

func threeBrandCatalog() *index.CatalogIndex {
	idx := index.NewCatalogIndex()
	idx.Replace([]domain.Brand{
		{ID: "b1", Code: "ALPHA", Name: "Alpha"},
		{ID: "b2", Code: "BRAVO", Name: "Bravo"},
		{ID: "b3", Code: "CHARLIE", Name: "Charlie"},
	}, []domain.TrackedDomain{
		{ID: "d1", BrandID: "b1", RawDomain: "alpha-group.com"},
		{ID: "d2", BrandID: "b2", RawDomain: "bravo-group.com"},
		{ID: "d3", BrandID: "b3", RawDomain: "charlie-group.com"},
	})
	return idx
}

func newAutoCheck(t *testing.T, s *domain.ScheduleSettings, search searchFunc, now time.Time) (*AutoCheck, *settings.MemoryRepository, *memRuns) {
	t.Helper()
	if len(s.Credentials) == 0 {
		s.Credentials = []domain.ApiCredential{{ID: "k1", Name: "Key 1", Secret: "secret-1", IsActive: true}}
	}
	repo := settings.NewMemoryRepository(s)
	runs := &memRuns{}

	a := NewAutoCheck(AutoCheckConfig{
		Settings: repo,
		Catalog:  threeBrandCatalog(),
		Pool:     keypool.New(repo, nil, 0, wib, logger.New("error", false)),
		Searcher: search,
		Runs:     runs,
		Logger:   logger.New("error", false),
	})
	a.now = func() time.Time { return now }
	return a, repo, runs
}

func load(t *testing.T, repo settings.Repository) *domain.ScheduleSettings {
	t.Helper()
	s, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestSweepRecordsBrandFailureAndAdvances(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 7, 0, 0, wib)
	due := time.Date(2026, 3, 1, 10, 0, 0, 0, wib)

	search := func(_ context.Context, apiKey, query string) ([]domain.SerpItem, error) {
		if apiKey != "secret-1" {
			t.Errorf("Search() apiKey = %q, want secret-1", apiKey)
		}
		if query == "Bravo" {
			return nil, errors.New("upstream timeout")
		}
		return []domain.SerpItem{
			{Rank: 1, Link: "https://www.alpha-group.com/home"},
			{Rank: 2, Link: "https://unrelated.org/"},
		}, nil
	}

	a, repo, runs := newAutoCheck(t, &domain.ScheduleSettings{
		AutoCheckEnabled: true,
		IntervalMinutes:  15,
		NextAutoCheckAt:  &due,
	}, search, now)

	a.Tick(context.Background())

	got := runs.checkRuns()
	if len(got) != 3 {
		t.Fatalf("persisted %d check runs, want 3", len(got))
	}

	alpha := got[0]
	if !alpha.OK || alpha.BrandCode != "ALPHA" || alpha.KeyIDUsed != "k1" {
		t.Errorf("alpha run = %+v", alpha)
	}
	if alpha.BestOwnRank == nil || *alpha.BestOwnRank != 1 || alpha.OwnCount != 1 || alpha.UnknownCount != 1 {
		t.Errorf("alpha ranks: best=%v own=%d unknown=%d", alpha.BestOwnRank, alpha.OwnCount, alpha.UnknownCount)
	}
	if got[1].OK || got[1].FailureReason == "" {
		t.Errorf("bravo run should fail with a reason, got %+v", got[1])
	}
	if got[2].OwnCount != 0 {
		t.Errorf("charlie OwnCount = %d, want 0", got[2].OwnCount)
	}

	s := load(t, repo)
	sum := s.LastRunSummary
	if sum == nil || sum.OKCount != 2 || sum.FailCount != 1 || sum.Total != 3 {
		t.Fatalf("LastRunSummary = %+v, want ok=2 fail=1 total=3", sum)
	}
	if sum.Failures[0].BrandCode != "BRAVO" {
		t.Errorf("failure brand = %q, want BRAVO", sum.Failures[0].BrandCode)
	}
	want := time.Date(2026, 3, 1, 10, 15, 0, 0, wib)
	if s.NextAutoCheckAt == nil || !s.NextAutoCheckAt.Equal(want) {
		t.Errorf("NextAutoCheckAt = %v, want %v", s.NextAutoCheckAt, want)
	}
	if s.LastAutoCheckStatus != domain.RunStatusSuccess {
		t.Errorf("LastAutoCheckStatus = %q, want success", s.LastAutoCheckStatus)
	}
	if st := a.Status(); st.State != StateIdle || st.LastRunSource != string(domain.TriggerAuto) {
		t.Errorf("Status() = %+v", st)
	}
}

func TestSweepAllFailedMarksRunFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 7, 0, 0, wib)
	search := func(context.Context, string, string) ([]domain.SerpItem, error) {
		return nil, errors.New("boom")
	}
	a, repo, _ := newAutoCheck(t, &domain.ScheduleSettings{IntervalMinutes: 30}, search, now)

	if err := a.RunNow(); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	a.wg.Wait()

	s := load(t, repo)
	if s.LastAutoCheckStatus != domain.RunStatusFailed || s.LastAutoCheckError == "" {
		t.Errorf("status = %q error = %q, want failed with error", s.LastAutoCheckStatus, s.LastAutoCheckError)
	}
	if s.NextAutoCheckAt != nil {
		t.Errorf("NextAutoCheckAt = %v, want nil while disabled", s.NextAutoCheckAt)
	}
}

func TestTick(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 7, 0, 0, wib)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		settings domain.ScheduleSettings
		wantRuns int
		wantNext *time.Time
	}{
		{
			name:     "disabled",
			settings: domain.ScheduleSettings{IntervalMinutes: 15},
		},
		{
			name:     "not due",
			settings: domain.ScheduleSettings{AutoCheckEnabled: true, IntervalMinutes: 15, NextAutoCheckAt: &future},
			wantNext: &future,
		},
		{
			name:     "enabled without slot only establishes it",
			settings: domain.ScheduleSettings{AutoCheckEnabled: true, IntervalMinutes: 15},
			wantNext: domain.TimePtr(time.Date(2026, 3, 1, 10, 15, 0, 0, wib)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			search := func(context.Context, string, string) ([]domain.SerpItem, error) {
				calls++
				return nil, nil
			}
			s := tt.settings
			a, repo, runs := newAutoCheck(t, &s, search, now)

			a.Tick(context.Background())

			if n := len(runs.checkRuns()); n != tt.wantRuns || calls != tt.wantRuns {
				t.Errorf("runs = %d, searches = %d, want %d", n, calls, tt.wantRuns)
			}
			got := load(t, repo).NextAutoCheckAt
			switch {
			case tt.wantNext == nil && got != nil:
				t.Errorf("NextAutoCheckAt = %v, want nil", got)
			case tt.wantNext != nil && (got == nil || !got.Equal(*tt.wantNext)):
				t.Errorf("NextAutoCheckAt = %v, want %v", got, tt.wantNext)
			}
		})
	}
}

func TestRunNowAdmitsExactlyOne(t *testing.T) {
	release := make(chan struct{})
	search := func(context.Context, string, string) ([]domain.SerpItem, error) {
		<-release
		return nil, nil
	}
	a, _, runs := newAutoCheck(t, &domain.ScheduleSettings{IntervalMinutes: 60}, search, time.Now())

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.RunNow()
		}()
	}
	wg.Wait()
	close(errs)

	started, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrAlreadyRunning):
			conflicts++
		default:
			t.Errorf("RunNow() unexpected error = %v", err)
		}
	}
	if started != 1 || conflicts != n-1 {
		t.Errorf("started = %d, conflicts = %d, want 1 and %d", started, conflicts, n-1)
	}

	close(release)
	a.wg.Wait()

	if got := len(runs.checkRuns()); got != 3 {
		t.Errorf("persisted %d check runs, want 3", got)
	}
	if err := a.RunNow(); err != nil {
		t.Errorf("RunNow() after completion error = %v", err)
	}
	a.wg.Wait()
}

func TestRequestStopSkipsRemainingBrands(t *testing.T) {
	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	search := func(context.Context, string, string) ([]domain.SerpItem, error) {
		entered <- struct{}{}
		<-release
		return nil, nil
	}
	a, repo, runs := newAutoCheck(t, &domain.ScheduleSettings{IntervalMinutes: 60}, search, time.Now())

	if a.RequestStop() {
		t.Error("RequestStop() = true while idle")
	}
	if err := a.RunNow(); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	<-entered

	if !a.RequestStop() {
		t.Error("RequestStop() = false while running")
	}
	if st := a.Status(); st.State != StateStoppingWhileRunning || !st.StopRequested {
		t.Errorf("Status() = %+v, want stopping", st)
	}

	close(release)
	a.wg.Wait()

	if got := len(runs.checkRuns()); got != 1 {
		t.Errorf("persisted %d check runs, want 1", got)
	}
	sum := load(t, repo).LastRunSummary
	if sum == nil || !sum.Stopped || sum.Skipped != 2 || sum.OKCount != 1 {
		t.Errorf("LastRunSummary = %+v, want stopped with 2 skipped", sum)
	}
	if st := a.Status(); st.State != StateIdle || st.IsRunning {
		t.Errorf("Status() after stop = %+v, want idle", st)
	}
}

func TestRunNotifiesObservers(t *testing.T) {
	var mu sync.Mutex
	var states []State
	obs := ObserverFunc(func(_ context.Context, source string, payload any) {
		if source != "auto_check" {
			t.Errorf("source = %q", source)
		}
		mu.Lock()
		states = append(states, payload.(Status).State)
		mu.Unlock()
	})
	panicky := ObserverFunc(func(context.Context, string, any) { panic("observer down") })

	search := func(context.Context, string, string) ([]domain.SerpItem, error) { return nil, nil }
	a, _, _ := newAutoCheck(t, &domain.ScheduleSettings{IntervalMinutes: 60}, search, time.Now())
	a.cfg.Observers = NewObservers(logger.New("error", false), panicky, obs)

	if err := a.RunNow(); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	a.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateRunning || states[1] != StateIdle {
		t.Errorf("observed states = %v, want [running idle]", states)
	}
}
