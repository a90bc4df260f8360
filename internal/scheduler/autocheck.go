package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/metrics"
	"github.com/MrSnakeDoc/serpwatch/internal/schedule"
	"github.com/MrSnakeDoc/serpwatch/internal/serp"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
)

const (
	// DefaultPollInterval is how often both schedulers look at the settings.
	DefaultPollInterval = time.Minute

	jobAutoCheck = "auto_check"
)

// Catalog is the brand set a sweep iterates.
type Catalog interface {
	Brands() []domain.Brand
	Lookup(brandID string) *domain.Lookup
}

// KeyPool hands out SERP credentials.
type KeyPool interface {
	Do(ctx context.Context, fn func(ctx context.Context, c domain.ApiCredential) error) (string, error)
}

type CheckRunStore interface {
	InsertCheckRun(ctx context.Context, run domain.CheckRun) error
}

type AutoCheckConfig struct {
	Settings  settings.Repository
	Catalog   Catalog
	Pool      KeyPool
	Searcher  serp.Searcher
	Runs      CheckRunStore
	Locker    Locker
	Observers *Observers
	Metrics   *metrics.Metrics
	Logger    logger.Logger

	// RefreshCatalog, when set, reloads the catalog before each sweep. A
	// failure keeps the catalog already in memory.
	RefreshCatalog func(ctx context.Context) error

	PollInterval time.Duration
	LockTTL      time.Duration
}

// AutoCheck runs brand sweeps on the persisted cadence. One sweep at most is
// in flight; a stop request is honoured between brands.
type AutoCheck struct {
	tracker

	cfg    AutoCheckConfig
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewAutoCheck(cfg AutoCheckConfig) *AutoCheck {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	return &AutoCheck{
		tracker: tracker{name: metrics.SchedulerAutoCheck, pollInterval: cfg.PollInterval},
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     time.Now,
		baseCtx: context.Background(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins polling. Manual runs started afterwards inherit ctx.
func (a *AutoCheck) Start(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		a.Tick(ctx)

		ticker := time.NewTicker(a.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Tick(ctx)
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	a.logger.Info("auto-check scheduler started",
		logger.Duration("poll_interval", a.cfg.PollInterval))
	return nil
}

// Stop ends polling, asks an in-flight sweep to stop and waits for it.
func (a *AutoCheck) Stop() {
	close(a.stopCh)
	a.RequestStop()
	a.wg.Wait()
}

// Tick runs one poll: it starts a sweep when the schedule is enabled and due.
// An enabled schedule without a next slot only gets its slot established.
func (a *AutoCheck) Tick(ctx context.Context) {
	s, err := a.cfg.Settings.Load(ctx)
	if err != nil {
		a.logger.Error("auto-check tick failed to load settings", logger.Error(err))
		return
	}
	if !s.AutoCheckEnabled {
		return
	}

	now := a.now()
	if s.NextAutoCheckAt == nil {
		a.establishSlot(ctx, now)
		return
	}
	if now.Before(*s.NextAutoCheckAt) {
		return
	}

	if !a.acquire() {
		a.logger.Debug("auto-check tick skipped, sweep in flight")
		return
	}
	release, ok := acquireLock(ctx, a.cfg.Locker, jobAutoCheck, a.cfg.LockTTL, a.logger)
	if !ok {
		a.abandon()
		a.logger.Info("auto-check tick skipped, another process holds the lock")
		return
	}
	defer release()

	a.run(ctx, domain.TriggerAuto)
}

func (a *AutoCheck) establishSlot(ctx context.Context, now time.Time) {
	s, err := settings.Update(ctx, a.cfg.Settings, func(s *domain.ScheduleSettings) error {
		if s.AutoCheckEnabled && s.NextAutoCheckAt == nil {
			s.NextAutoCheckAt = domain.TimePtr(schedule.NextCheckSlot(now, s.IntervalMinutes))
		}
		return nil
	})
	if err != nil {
		a.logger.Error("failed to establish next auto-check slot", logger.Error(err))
		return
	}
	a.cfg.Metrics.SetNextRun(metrics.SchedulerAutoCheck, s.NextAutoCheckAt)
	a.logger.Info("auto-check slot established",
		logger.Any("next_auto_check_at", s.NextAutoCheckAt))
}

// RunNow starts a detached manual sweep, regardless of the enabled flag.
func (a *AutoCheck) RunNow() error {
	if !a.acquire() {
		return ErrAlreadyRunning
	}

	a.mu.Lock()
	ctx := a.baseCtx
	a.mu.Unlock()

	release, ok := acquireLock(ctx, a.cfg.Locker, jobAutoCheck, a.cfg.LockTTL, a.logger)
	if !ok {
		a.abandon()
		return ErrAlreadyRunning
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer release()
		a.run(ctx, domain.TriggerManual)
	}()
	return nil
}

// RequestStop asks the in-flight sweep to stop after the current brand. It
// reports whether a sweep was running.
func (a *AutoCheck) RequestStop() bool {
	if !a.requestStop() {
		return false
	}
	a.logger.Info("auto-check stop requested")
	a.cfg.Observers.Notify(context.Background(), metrics.SchedulerAutoCheck, a.Status())
	return true
}

func (a *AutoCheck) Status() Status {
	return a.snapshot()
}

func (a *AutoCheck) run(ctx context.Context, trigger domain.Trigger) {
	started := a.now()
	a.begin(string(trigger), started)
	a.cfg.Metrics.SetRunning(metrics.SchedulerAutoCheck, true)
	a.cfg.Observers.Notify(ctx, metrics.SchedulerAutoCheck, a.Status())

	a.logger.Info("auto-check sweep started", logger.String("trigger", string(trigger)))

	if a.cfg.RefreshCatalog != nil {
		if err := a.cfg.RefreshCatalog(ctx); err != nil {
			a.logger.Warn("failed to refresh catalog, using the one in memory", logger.Error(err))
		}
	}

	summary := a.sweep(ctx, trigger, started)
	summary.FinishedAt = a.now()

	var runErr error
	if summary.Total > 0 && summary.OKCount == 0 && summary.FailCount > 0 {
		runErr = errors.New(summary.Failures[0].Reason)
	}
	a.persist(ctx, summary, runErr)

	outcome := metrics.OutcomeOK
	switch {
	case summary.Stopped:
		outcome = metrics.OutcomeStopped
	case runErr != nil:
		outcome = metrics.OutcomeFailed
	}
	a.cfg.Metrics.ObserveSweep(string(trigger), outcome, summary.FinishedAt.Sub(started))
	a.cfg.Metrics.SetRunning(metrics.SchedulerAutoCheck, false)

	a.logger.Info("auto-check sweep finished",
		logger.String("trigger", string(trigger)),
		logger.Int("total", summary.Total),
		logger.Int("ok", summary.OKCount),
		logger.Int("failed", summary.FailCount),
		logger.Int("skipped", summary.Skipped),
		logger.Bool("stopped", summary.Stopped),
		logger.Duration("duration", summary.FinishedAt.Sub(started)))

	a.finish(summary.FinishedAt, &summary, runErr)
	a.cfg.Observers.Notify(ctx, metrics.SchedulerAutoCheck, a.Status())
}

func (a *AutoCheck) sweep(ctx context.Context, trigger domain.Trigger, started time.Time) domain.SweepSummary {
	brands := a.cfg.Catalog.Brands()
	summary := domain.SweepSummary{
		Trigger:   trigger,
		StartedAt: started,
		Total:     len(brands),
	}

	for i, b := range brands {
		if a.stopRequested() || ctx.Err() != nil {
			summary.Stopped = true
			summary.Skipped = len(brands) - i
			break
		}

		run := a.checkBrand(ctx, b, trigger)
		if err := a.cfg.Runs.InsertCheckRun(ctx, run); err != nil {
			a.logger.Error("failed to persist check run",
				logger.String("brand", b.Code),
				logger.Error(err))
		}

		if run.OK {
			summary.OKCount++
			a.cfg.Metrics.IncBrandCheck(metrics.OutcomeOK)
			continue
		}
		summary.FailCount++
		summary.Failures = append(summary.Failures, domain.BrandFailure{
			BrandID:   b.ID,
			BrandCode: b.Code,
			Reason:    run.FailureReason,
		})
		a.cfg.Metrics.IncBrandCheck(metrics.OutcomeFailed)
		a.logger.Warn("brand check failed",
			logger.String("brand", b.Code),
			logger.String("reason", run.FailureReason))
	}
	return summary
}

func (a *AutoCheck) checkBrand(ctx context.Context, b domain.Brand, trigger domain.Trigger) domain.CheckRun {
	run := domain.CheckRun{
		ID:        uuid.NewString(),
		BrandID:   b.ID,
		BrandCode: b.Code,
		Query:     b.SearchQuery(),
		CheckedAt: a.now(),
		Trigger:   trigger,
	}

	var items []domain.SerpItem
	keyID, err := a.cfg.Pool.Do(ctx, func(ctx context.Context, c domain.ApiCredential) error {
		var err error
		items, err = a.cfg.Searcher.Search(ctx, c.Secret, run.Query)
		a.cfg.Metrics.IncSerpRequest(serpOutcome(err))
		return err
	})
	run.KeyIDUsed = keyID
	if err != nil {
		run.FailureReason = err.Error()
		run.Results = []domain.ResultItem{}
		return run
	}

	run.BuildResults(items, a.cfg.Catalog.Lookup(b.ID))
	run.OK = true
	return run
}

// persist records the sweep bookkeeping and advances the next slot.
func (a *AutoCheck) persist(ctx context.Context, summary domain.SweepSummary, runErr error) {
	ctx = context.WithoutCancel(ctx)
	s, err := settings.Update(ctx, a.cfg.Settings, func(s *domain.ScheduleSettings) error {
		s.LastAutoCheckAt = domain.TimePtr(summary.FinishedAt)
		s.LastRunSummary = &summary
		s.LastAutoCheckStatus = domain.RunStatusSuccess
		s.LastAutoCheckError = ""
		if runErr != nil {
			s.LastAutoCheckStatus = domain.RunStatusFailed
			s.LastAutoCheckError = runErr.Error()
		}

		s.NextAutoCheckAt = nil
		if s.AutoCheckEnabled {
			s.NextAutoCheckAt = domain.TimePtr(schedule.NextCheckSlot(summary.FinishedAt, s.IntervalMinutes))
		}
		return nil
	})
	if err != nil {
		a.logger.Error("failed to persist auto-check bookkeeping", logger.Error(err))
		return
	}
	a.cfg.Metrics.SetNextRun(metrics.SchedulerAutoCheck, s.NextAutoCheckAt)
}

func serpOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, serp.ErrQuotaExhausted):
		return metrics.OutcomeQuota
	case errors.Is(err, serp.ErrUnauthorized):
		return metrics.OutcomeAuth
	default:
		return metrics.OutcomeFailed
	}
}
