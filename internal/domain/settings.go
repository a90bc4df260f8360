package domain

import "time"

// Frequency is the backup cadence.
type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyTwiceWeekly Frequency = "twice_weekly"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyMonthly     Frequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceWeekly, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Format is the serialization of backup files.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatNDJSON
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatNDJSON {
		return "ndjson"
	}
	return "json"
}

// BackupSettings is the backup half of the schedule document.
type BackupSettings struct {
	Enabled   bool      `json:"enabled"`
	Frequency Frequency `json:"frequency"`
	// TimeOfDay is "HH:mm" in the system timezone.
	TimeOfDay        string   `json:"time_of_day"`
	Format           Format   `json:"format"`
	TelegramBotToken string   `json:"telegram_bot_token,omitempty"`
	ChatTargets      []string `json:"chat_targets"`

	// NextBackupAt is nil exactly when Enabled is false.
	NextBackupAt *time.Time `json:"next_backup_at,omitempty"`

	// TwiceWeeklyNextGapDays is the gap (3 or 4) applied after the next run.
	TwiceWeeklyNextGapDays int `json:"twice_weekly_next_gap_days"`

	LastBackupAt *time.Time `json:"last_backup_at,omitempty"`
	LastStatus   RunStatus  `json:"last_status,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// ScheduleSettings is the process-wide persisted schedule document. Both
// scheduler loops and the admin service read and write it through a repository
// with optimistic concurrency on Version.
type ScheduleSettings struct {
	Version int64 `json:"version"`

	AutoCheckEnabled bool `json:"auto_check_enabled"`
	IntervalMinutes  int  `json:"interval_minutes"`
	// NextAutoCheckAt is nil exactly when AutoCheckEnabled is false.
	NextAutoCheckAt *time.Time `json:"next_auto_check_at,omitempty"`

	LastAutoCheckAt     *time.Time    `json:"last_auto_check_at,omitempty"`
	LastAutoCheckStatus RunStatus     `json:"last_auto_check_status,omitempty"`
	LastAutoCheckError  string        `json:"last_auto_check_error,omitempty"`
	LastRunSummary      *SweepSummary `json:"last_run_summary,omitempty"`

	ActiveKeyCursor int             `json:"active_key_cursor"`
	Credentials     []ApiCredential `json:"credentials"`

	Backup BackupSettings `json:"backup"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without sharing state.
func (s *ScheduleSettings) Clone() *ScheduleSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.NextAutoCheckAt = cloneTime(s.NextAutoCheckAt)
	out.LastAutoCheckAt = cloneTime(s.LastAutoCheckAt)
	if s.LastRunSummary != nil {
		sum := *s.LastRunSummary
		sum.Failures = append([]BrandFailure(nil), s.LastRunSummary.Failures...)
		out.LastRunSummary = &sum
	}
	out.Credentials = make([]ApiCredential, len(s.Credentials))
	for i, c := range s.Credentials {
		c.BaselineRemaining = cloneInt(c.BaselineRemaining)
		c.BaselineCapturedAt = cloneTime(c.BaselineCapturedAt)
		c.LastUsedAt = cloneTime(c.LastUsedAt)
		c.ExhaustedAt = cloneTime(c.ExhaustedAt)
		out.Credentials[i] = c
	}
	out.Backup.ChatTargets = append([]string(nil), s.Backup.ChatTargets...)
	out.Backup.NextBackupAt = cloneTime(s.Backup.NextBackupAt)
	out.Backup.LastBackupAt = cloneTime(s.Backup.LastBackupAt)
	return &out
}

// ActiveCredentials returns the active credentials in stored order.
func (s *ScheduleSettings) ActiveCredentials() []ApiCredential {
	active := make([]ApiCredential, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active
}

// Credential returns a pointer into Credentials for in-place updates.
func (s *ScheduleSettings) Credential(id string) *ApiCredential {
	for i := range s.Credentials {
		if s.Credentials[i].ID == id {
			return &s.Credentials[i]
		}
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
