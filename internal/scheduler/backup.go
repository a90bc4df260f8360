package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/backup"
	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/metrics"
	"github.com/MrSnakeDoc/serpwatch/internal/schedule"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

const jobBackup = "backup"

// BackupRunner exports the data store to a messenger.
type BackupRunner interface {
	Run(ctx context.Context, m telegram.Messenger, opts backup.Options) (domain.BackupRun, error)
}

type BackupRunStore interface {
	InsertBackupRun(ctx context.Context, run domain.BackupRun) error
}

// MessengerFactory binds a messenger to a bot token.
type MessengerFactory func(token string) (telegram.Messenger, error)

type BackupConfig struct {
	Settings  settings.Repository
	Runner    BackupRunner
	Runs      BackupRunStore
	Messenger MessengerFactory
	Locker    Locker
	Observers *Observers
	Metrics   *metrics.Metrics
	Logger    logger.Logger
	Location  *time.Location

	// FallbackToken is used when the settings carry no bot token.
	FallbackToken string

	PollInterval time.Duration
	LockTTL      time.Duration
}

// Backup ships the data store on the persisted backup cadence.
type Backup struct {
	tracker

	cfg    BackupConfig
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewBackup(cfg BackupConfig) *Backup {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Backup{
		tracker: tracker{name: metrics.SchedulerBackup, pollInterval: cfg.PollInterval},
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     time.Now,
		baseCtx: context.Background(),
		stopCh:  make(chan struct{}),
	}
}

func (b *Backup) Start(ctx context.Context) error {
	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		b.Tick(ctx)

		ticker := time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Tick(ctx)
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	b.logger.Info("backup scheduler started",
		logger.Duration("poll_interval", b.cfg.PollInterval))
	return nil
}

// Stop ends polling and waits for an in-flight backup.
func (b *Backup) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *Backup) Status() Status {
	return b.snapshot()
}

// Tick starts a backup when enabled and due. An enabled schedule without a
// next slot only gets its slot established.
func (b *Backup) Tick(ctx context.Context) {
	s, err := b.cfg.Settings.Load(ctx)
	if err != nil {
		b.logger.Error("backup tick failed to load settings", logger.Error(err))
		return
	}
	if !s.Backup.Enabled {
		return
	}

	now := b.now()
	if s.Backup.NextBackupAt == nil {
		b.establishSlot(ctx, now)
		return
	}
	if now.Before(*s.Backup.NextBackupAt) {
		return
	}

	if !b.acquire() {
		b.logger.Debug("backup tick skipped, backup in flight")
		return
	}
	release, ok := acquireLock(ctx, b.cfg.Locker, jobBackup, b.cfg.LockTTL, b.logger)
	if !ok {
		b.abandon()
		b.logger.Info("backup tick skipped, another process holds the lock")
		return
	}
	defer release()

	b.execute(ctx, s, domain.BackupSourceScheduler, s.Backup.NextBackupAt)
}

func (b *Backup) establishSlot(ctx context.Context, now time.Time) {
	s, err := settings.Update(ctx, b.cfg.Settings, func(s *domain.ScheduleSettings) error {
		if s.Backup.Enabled && s.Backup.NextBackupAt == nil {
			tod := schedule.MustTimeOfDay(s.Backup.TimeOfDay)
			s.Backup.NextBackupAt = domain.TimePtr(schedule.FirstBackupSlot(now, tod, b.cfg.Location))
		}
		return nil
	})
	if err != nil {
		b.logger.Error("failed to establish next backup slot", logger.Error(err))
		return
	}
	b.cfg.Metrics.SetNextRun(metrics.SchedulerBackup, s.Backup.NextBackupAt)
}

// RunNow starts a detached manual backup.
func (b *Backup) RunNow(ctx context.Context) error {
	if !b.acquire() {
		return ErrAlreadyRunning
	}

	s, err := b.cfg.Settings.Load(ctx)
	if err != nil {
		b.abandon()
		return err
	}

	b.mu.Lock()
	runCtx := b.baseCtx
	b.mu.Unlock()

	release, ok := acquireLock(runCtx, b.cfg.Locker, jobBackup, b.cfg.LockTTL, b.logger)
	if !ok {
		b.abandon()
		return ErrAlreadyRunning
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer release()
		b.execute(runCtx, s, domain.BackupSourceManual, nil)
	}()
	return nil
}

// execute runs one backup. scheduledAt is the slot being served, nil for a
// manual run.
func (b *Backup) execute(ctx context.Context, s *domain.ScheduleSettings, source domain.BackupSource, scheduledAt *time.Time) {
	started := b.now()
	b.begin(string(source), started)
	b.cfg.Metrics.SetRunning(metrics.SchedulerBackup, true)
	b.cfg.Observers.Notify(ctx, metrics.SchedulerBackup, b.Status())

	b.logger.Info("backup started", logger.String("source", string(source)))

	opts := backup.Options{
		Source:        source,
		Format:        s.Backup.Format,
		TimeframeDays: schedule.TimeframeDays(s.Backup.Frequency, s.Backup.TwiceWeeklyNextGapDays),
		ChatTargets:   s.Backup.ChatTargets,
	}
	var run domain.BackupRun
	m, runErr := b.messenger(s)
	if runErr != nil {
		run = domain.BackupRun{
			ID:            uuid.NewString(),
			Source:        source,
			Status:        domain.RunStatusFailed,
			StartedAt:     started,
			FinishedAt:    b.now(),
			TimeframeDays: opts.TimeframeDays,
			Format:        opts.Format,
			ChatTargets:   opts.ChatTargets,
			Error:         runErr.Error(),
		}
	} else {
		run, runErr = b.cfg.Runner.Run(ctx, m, opts)
	}

	if err := b.cfg.Runs.InsertBackupRun(context.WithoutCancel(ctx), run); err != nil {
		b.logger.Error("failed to persist backup run", logger.Error(err))
	}
	b.persist(ctx, run, runErr, scheduledAt)

	finished := b.now()
	b.cfg.Metrics.ObserveBackup(string(source), string(run.Status), run.TotalRecords, finished.Sub(started))
	b.cfg.Metrics.SetRunning(metrics.SchedulerBackup, false)

	if runErr != nil {
		b.logger.Error("backup failed",
			logger.String("source", string(source)),
			logger.Int("records", run.TotalRecords),
			logger.Int("files", run.TotalFiles),
			logger.Error(runErr))
	} else {
		b.logger.Info("backup finished",
			logger.String("source", string(source)),
			logger.Int("collections", run.TotalCollections),
			logger.Int("records", run.TotalRecords),
			logger.Int("files", run.TotalFiles),
			logger.Duration("duration", finished.Sub(started)))
	}

	b.finish(finished, &run, runErr)
	b.cfg.Observers.Notify(ctx, metrics.SchedulerBackup, b.Status())
}

// messenger returns a nil messenger when no token is configured; the runner
// reports that. A factory failure for a configured token is returned as is.
func (b *Backup) messenger(s *domain.ScheduleSettings) (telegram.Messenger, error) {
	token := s.Backup.TelegramBotToken
	if token == "" {
		token = b.cfg.FallbackToken
	}
	if token == "" || b.cfg.Messenger == nil {
		return nil, nil
	}
	m, err := b.cfg.Messenger(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram messenger: %w", err)
	}
	return m, nil
}

// persist records the outcome and moves the next slot. A scheduled success
// steps from its slot. A manual success steps from now, where monthly means
// +30 days. A failure restarts at the next time of day after now.
func (b *Backup) persist(ctx context.Context, run domain.BackupRun, runErr error, scheduledAt *time.Time) {
	ctx = context.WithoutCancel(ctx)
	now := b.now()

	s, err := settings.Update(ctx, b.cfg.Settings, func(s *domain.ScheduleSettings) error {
		bs := &s.Backup
		tod := schedule.MustTimeOfDay(bs.TimeOfDay)

		if runErr != nil {
			bs.LastStatus = domain.RunStatusFailed
			bs.LastError = runErr.Error()
			bs.NextBackupAt = nil
			if bs.Enabled {
				bs.NextBackupAt = domain.TimePtr(schedule.FirstBackupSlot(now, tod, b.cfg.Location))
			}
			return nil
		}

		bs.LastBackupAt = domain.TimePtr(run.FinishedAt)
		bs.LastStatus = domain.RunStatusSuccess
		bs.LastError = ""

		gap := schedule.NormalizeGap(bs.TwiceWeeklyNextGapDays)
		bs.NextBackupAt = nil
		if bs.Enabled {
			base, fromScheduled := now, false
			if scheduledAt != nil {
				base, fromScheduled = *scheduledAt, true
			}
			next := schedule.NextBackupSlot(base, fromScheduled, schedule.BackupCadence{
				Frequency: bs.Frequency,
				TimeOfDay: tod,
				GapDays:   gap,
			}, b.cfg.Location)
			if !next.After(now) {
				// Missed slots are not replayed one by one.
				next = schedule.FirstBackupSlot(now, tod, b.cfg.Location)
			}
			bs.NextBackupAt = &next
		}

		bs.TwiceWeeklyNextGapDays = 3
		if bs.Frequency == domain.FrequencyTwiceWeekly {
			bs.TwiceWeeklyNextGapDays = schedule.ToggleGap(gap)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("failed to persist backup bookkeeping", logger.Error(err))
		return
	}
	b.cfg.Metrics.SetNextRun(metrics.SchedulerBackup, s.Backup.NextBackupAt)
}
