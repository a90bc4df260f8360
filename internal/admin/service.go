// Package admin is the write boundary of the schedule settings. Every update is
// validated here, applied through an optimistic read-modify-write and then
// announced to the observers.
package admin

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/keypool"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/schedule"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

const (
	slotWindow       = 48 * time.Hour
	recentBackupRuns = 20
)

type AutoCheckController interface {
	RunNow() error
	RequestStop() bool
	Status() scheduler.Status
}

type BackupController interface {
	RunNow(ctx context.Context) error
	Status() scheduler.Status
}

type RunHistory interface {
	RecentCheckRuns(ctx context.Context, since time.Time, trigger domain.Trigger) ([]domain.CheckRun, error)
	RecentBackupRuns(ctx context.Context, limit int) ([]domain.BackupRun, error)
}

type KeyUsage interface {
	Usage(ctx context.Context, s *domain.ScheduleSettings) (keypool.Summary, error)
}

type CatalogStats interface {
	Count() int
	DomainCount() int
	LastReload() time.Time
}

type Config struct {
	Settings      settings.Repository
	AutoCheck     AutoCheckController
	Backup        BackupController
	History       RunHistory
	Keys          KeyUsage
	Catalog       CatalogStats
	Messenger     scheduler.MessengerFactory
	FallbackToken string
	Observers     *scheduler.Observers
	Location      *time.Location
	Logger        logger.Logger
}

type Service struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{cfg: cfg, now: time.Now}
}

type ScheduleUpdate struct {
	AutoCheckEnabled *bool `json:"auto_check_enabled"`
	IntervalMinutes  *int  `json:"interval_minutes"`
}

type BackupUpdate struct {
	Enabled          *bool     `json:"enabled"`
	Frequency        *string   `json:"frequency"`
	TimeOfDay        *string   `json:"time_of_day"`
	Format           *string   `json:"format"`
	TelegramBotToken *string   `json:"telegram_bot_token"`
	ChatTargets      *[]string `json:"chat_targets"`
}

type KeyInput struct {
	Name              *string `json:"name"`
	Secret            *string `json:"key"`
	IsActive          *bool   `json:"is_active"`
	BaselineRemaining *int    `json:"baseline_remaining"`
}

type TelegramTest struct {
	TelegramBotToken *string   `json:"telegram_bot_token"`
	ChatTargets      *[]string `json:"chat_targets"`
	Message          string    `json:"message"`
}

// Settings returns the sanitized settings document.
func (s *Service) Settings(ctx context.Context) (*domain.ScheduleSettings, error) {
	doc, err := s.cfg.Settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Sanitize(doc), nil
}

// UpdateSchedule applies an auto-check update. Changing the interval while
// enabled is refused unless the same request disables the schedule.
func (s *Service) UpdateSchedule(ctx context.Context, u ScheduleUpdate) (*domain.ScheduleSettings, error) {
	if u.IntervalMinutes != nil {
		v := *u.IntervalMinutes
		if v < schedule.MinIntervalMinutes || v > schedule.MaxIntervalMinutes {
			return nil, invalid("interval_minutes", "must be between %d and %d", schedule.MinIntervalMinutes, schedule.MaxIntervalMinutes)
		}
		if !schedule.IsAllowedInterval(v) {
			return nil, invalid("interval_minutes", "must be one of: 15, 30, 60")
		}
	}

	now := s.now()
	doc, err := settings.Update(ctx, s.cfg.Settings, func(doc *domain.ScheduleSettings) error {
		intervalChanged := u.IntervalMinutes != nil && *u.IntervalMinutes != doc.IntervalMinutes
		disabling := u.AutoCheckEnabled != nil && !*u.AutoCheckEnabled
		if intervalChanged && doc.AutoCheckEnabled && !disabling {
			return ErrIntervalChangeWhileEnabled
		}

		if intervalChanged {
			doc.IntervalMinutes = *u.IntervalMinutes
		}
		if u.AutoCheckEnabled != nil {
			doc.AutoCheckEnabled = *u.AutoCheckEnabled
		}

		switch {
		case !doc.AutoCheckEnabled:
			doc.NextAutoCheckAt = nil
		case u.AutoCheckEnabled != nil || doc.NextAutoCheckAt == nil:
			doc.NextAutoCheckAt = domain.TimePtr(schedule.NextCheckSlot(now, doc.IntervalMinutes))
		}
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "schedule-update")
	return Sanitize(doc), nil
}

type StopResult struct {
	StopRequested   bool                     `json:"stop_requested"`
	SchedulerStatus scheduler.Status         `json:"scheduler_status"`
	Settings        *domain.ScheduleSettings `json:"settings"`
}

// StopAutoCheck disables the schedule and asks an in-flight sweep to stop.
func (s *Service) StopAutoCheck(ctx context.Context) (StopResult, error) {
	doc, err := settings.Update(ctx, s.cfg.Settings, func(doc *domain.ScheduleSettings) error {
		doc.AutoCheckEnabled = false
		doc.NextAutoCheckAt = nil
		doc.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}

	stopRequested := s.cfg.AutoCheck.RequestStop()
	s.cfg.Logger.Info("auto-check stopped", logger.Bool("stop_requested_while_running", stopRequested))
	s.notify(ctx, "stop-run")
	return StopResult{
		StopRequested:   stopRequested,
		SchedulerStatus: s.cfg.AutoCheck.Status(),
		Settings:        Sanitize(doc),
	}, nil
}

// RunAutoCheck starts a detached sweep.
func (s *Service) RunAutoCheck(ctx context.Context) (scheduler.Status, error) {
	if err := s.cfg.AutoCheck.RunNow(); err != nil {
		return s.cfg.AutoCheck.Status(), err
	}
	s.notify(ctx, "run-now")
	return s.cfg.AutoCheck.Status(), nil
}

// RunBackup starts a detached backup.
func (s *Service) RunBackup(ctx context.Context) (scheduler.Status, error) {
	if err := s.cfg.Backup.RunNow(ctx); err != nil {
		return s.cfg.Backup.Status(), err
	}
	s.notify(ctx, "backup-run-now")
	return s.cfg.Backup.Status(), nil
}

// UpdateBackup applies a backup settings update. Any change to the enabled
// flag, frequency or time of day on an enabled schedule restarts it from the
// next configured time of day.
func (s *Service) UpdateBackup(ctx context.Context, u BackupUpdate) (*domain.ScheduleSettings, error) {
	var (
		freq   domain.Frequency
		format domain.Format
		tod    schedule.TimeOfDay
	)
	if u.Frequency != nil {
		freq = domain.Frequency(strings.ToLower(strings.TrimSpace(*u.Frequency)))
		if !freq.Valid() {
			return nil, invalid("frequency", "must be one of: daily, twice_weekly, weekly, monthly")
		}
	}
	if u.TimeOfDay != nil {
		parsed, err := schedule.ParseTimeOfDay(strings.TrimSpace(*u.TimeOfDay))
		if err != nil {
			return nil, invalid("time_of_day", "must be in HH:mm format")
		}
		tod = parsed
	}
	if u.Format != nil {
		format = domain.Format(strings.ToLower(strings.TrimSpace(*u.Format)))
		if !format.Valid() {
			return nil, invalid("format", "must be one of: json, ndjson")
		}
	}

	now := s.now()
	doc, err := settings.Update(ctx, s.cfg.Settings, func(doc *domain.ScheduleSettings) error {
		b := &doc.Backup
		reschedule := false

		if u.Enabled != nil {
			if *u.Enabled && !b.Enabled {
				b.TwiceWeeklyNextGapDays = 3
			}
			b.Enabled = *u.Enabled
			reschedule = true
		}
		if u.Frequency != nil {
			b.Frequency = freq
			b.TwiceWeeklyNextGapDays = 3
			reschedule = true
		}
		if u.TimeOfDay != nil {
			b.TimeOfDay = tod.String()
			reschedule = true
		}
		if u.Format != nil {
			b.Format = format
		}
		if u.TelegramBotToken != nil {
			b.TelegramBotToken = strings.TrimSpace(*u.TelegramBotToken)
		}
		if u.ChatTargets != nil {
			b.ChatTargets = settings.NormalizeChatTargets(*u.ChatTargets)
		}

		switch {
		case !b.Enabled:
			b.NextBackupAt = nil
		case reschedule || b.NextBackupAt == nil:
			b.NextBackupAt = domain.TimePtr(schedule.FirstBackupSlot(now, schedule.MustTimeOfDay(b.TimeOfDay), s.cfg.Location))
		}
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "backup-settings-update")
	return Sanitize(doc), nil
}

// AddKey stores a new SERP credential.
func (s *Service) AddKey(ctx context.Context, in KeyInput) (*domain.ScheduleSettings, error) {
	name, secret := trimmed(in.Name), trimmed(in.Secret)
	if name == "" || secret == "" {
		return nil, invalid("name", "and key are required")
	}
	if in.BaselineRemaining != nil && *in.BaselineRemaining < 0 {
		return nil, invalid("baseline_remaining", "must not be negative")
	}

	now := s.now()
	doc, err := settings.Update(ctx, s.cfg.Settings, func(doc *domain.ScheduleSettings) error {
		c := domain.ApiCredential{
			ID:       uuid.NewString(),
			Name:     name,
			Secret:   secret,
			IsActive: in.IsActive == nil || *in.IsActive,
		}
		if in.BaselineRemaining != nil {
			c.BaselineRemaining = in.BaselineRemaining
			c.BaselineCapturedAt = domain.TimePtr(now)
		}
		doc.Credentials = append(doc.Credentials, c)
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "api-key-add")
	return Sanitize(doc), nil
}

// UpdateKey renames, toggles, rotates or rebaselines a credential. Keys are
// never removed; deactivate them instead.
func (s *Service) UpdateKey(ctx context.Context, id string, in KeyInput) (*domain.ScheduleSettings, error) {
	if in.BaselineRemaining != nil && *in.BaselineRemaining < 0 {
		return nil, invalid("baseline_remaining", "must not be negative")
	}

	now := s.now()
	doc, err := settings.Update(ctx, s.cfg.Settings, func(doc *domain.ScheduleSettings) error {
		c := doc.Credential(id)
		if c == nil {
			return ErrKeyNotFound
		}
		if name := trimmed(in.Name); name != "" {
			c.Name = name
		}
		if secret := trimmed(in.Secret); secret != "" && secret != c.Secret {
			c.Secret = secret
			c.ExhaustedAt = nil
			c.LastError = ""
		}
		if in.IsActive != nil {
			c.IsActive = *in.IsActive
		}
		if in.BaselineRemaining != nil {
			v := *in.BaselineRemaining
			c.BaselineRemaining = &v
			c.BaselineCapturedAt = domain.TimePtr(now)
		}
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "api-key-update")
	return Sanitize(doc), nil
}

// Keys returns the key usage summary.
func (s *Service) Keys(ctx context.Context) (keypool.Summary, error) {
	doc, err := s.cfg.Settings.Load(ctx)
	if err != nil {
		return keypool.Summary{}, err
	}
	return s.cfg.Keys.Usage(ctx, doc)
}

// TestTelegram sends a test message to the given or stored chat targets.
func (s *Service) TestTelegram(ctx context.Context, in TelegramTest) (telegram.TargetReport, error) {
	doc, err := s.cfg.Settings.Load(ctx)
	if err != nil {
		return telegram.TargetReport{}, err
	}

	token := doc.Backup.TelegramBotToken
	if in.TelegramBotToken != nil {
		token = strings.TrimSpace(*in.TelegramBotToken)
	}
	if token == "" {
		token = s.cfg.FallbackToken
	}
	targets := doc.Backup.ChatTargets
	if in.ChatTargets != nil {
		targets = settings.NormalizeChatTargets(*in.ChatTargets)
	}

	if s.cfg.Messenger == nil {
		return telegram.TargetReport{}, telegram.ErrNotConfigured
	}
	m, err := s.cfg.Messenger(token)
	if err != nil {
		return telegram.TargetReport{}, err
	}

	text := strings.TrimSpace(in.Message)
	if text == "" {
		text = telegram.DefaultTestMessage(s.now())
	}
	return telegram.TestTargets(ctx, m, targets, text)
}

type CatalogInfo struct {
	Brands     int        `json:"brands"`
	Domains    int        `json:"domains"`
	LastReload *time.Time `json:"last_reload,omitempty"`
}

type StatusReport struct {
	Settings         *domain.ScheduleSettings `json:"settings"`
	Keys             keypool.Summary          `json:"keys"`
	AutoCheck        scheduler.Status         `json:"auto_check"`
	Backup           scheduler.Status         `json:"backup"`
	AutoCheckSlots   []domain.SlotStatus      `json:"auto_check_slots"`
	RecentBackupRuns []domain.BackupRun       `json:"recent_backup_runs"`
	Catalog          *CatalogInfo             `json:"catalog,omitempty"`
}

// Status assembles the admin dashboard. History lookups degrade to empty
// lists when the run store is unavailable.
func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	doc, err := s.cfg.Settings.Load(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		Settings:         Sanitize(doc),
		AutoCheck:        s.cfg.AutoCheck.Status(),
		Backup:           s.cfg.Backup.Status(),
		AutoCheckSlots:   []domain.SlotStatus{},
		RecentBackupRuns: []domain.BackupRun{},
	}

	if s.cfg.Keys != nil {
		keys, err := s.cfg.Keys.Usage(ctx, doc)
		if err != nil {
			s.cfg.Logger.Warn("failed to compute key usage", logger.Error(err))
		}
		report.Keys = keys
	}

	if s.cfg.History != nil {
		runs, err := s.cfg.History.RecentCheckRuns(ctx, s.now().Add(-slotWindow), domain.TriggerAuto)
		if err != nil {
			s.cfg.Logger.Warn("failed to load recent check runs", logger.Error(err))
		} else {
			report.AutoCheckSlots = domain.BuildSlotStatuses(runs, doc.IntervalMinutes)
		}

		backups, err := s.cfg.History.RecentBackupRuns(ctx, recentBackupRuns)
		if err != nil {
			s.cfg.Logger.Warn("failed to load recent backup runs", logger.Error(err))
		} else {
			report.RecentBackupRuns = backups
		}
	}

	if s.cfg.Catalog != nil {
		info := &CatalogInfo{Brands: s.cfg.Catalog.Count(), Domains: s.cfg.Catalog.DomainCount()}
		if last := s.cfg.Catalog.LastReload(); !last.IsZero() {
			info.LastReload = &last
		}
		report.Catalog = info
	}
	return report, nil
}

// Sanitize returns a copy safe to expose: secrets and the bot token masked.
func Sanitize(doc *domain.ScheduleSettings) *domain.ScheduleSettings {
	out := doc.Clone()
	for i, c := range out.Credentials {
		out.Credentials[i] = c.Masked()
	}
	if out.Backup.TelegramBotToken != "" {
		out.Backup.TelegramBotToken = domain.MaskSecret(out.Backup.TelegramBotToken)
	}
	return out
}

func (s *Service) notify(ctx context.Context, source string) {
	s.cfg.Observers.Notify(ctx, "admin", map[string]string{"source": source})
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
