package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/schedule"
)

// Defaults are the process-level values applied when the document is created
// or found incomplete.
type Defaults struct {
	IntervalMinutes int
	EnvSecrets      []string // SERP keys from the environment
	ChatTargets     []string // Telegram chat IDs from the environment
	Location        *time.Location
}

// Migrate runs once at startup: it creates the document when missing and
// normalizes legacy or hand-edited values so that the loops and the admin
// service never have to repair the shape on read. It only writes when
// something changed.
func Migrate(ctx context.Context, repo Repository, d Defaults, now time.Time) (*domain.ScheduleSettings, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		s, err := repo.Load(ctx)
		created := false
		switch {
		case errors.Is(err, ErrNotFound):
			s, created = &domain.ScheduleSettings{}, true
		case err != nil:
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}

		if changed := Normalize(s, d, now); !changed && !created {
			return s, nil
		}

		err = repo.Save(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrStaleSettings) {
			return nil, fmt.Errorf("failed to save settings: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to migrate settings: %w", ErrStaleSettings)
}

// Normalize repairs s in place and reports whether anything changed.
func Normalize(s *domain.ScheduleSettings, d Defaults, now time.Time) bool {
	before, _ := json.Marshal(s)
	loc := d.Location
	if loc == nil {
		loc = schedule.LoadLocation("")
	}

	if s.IntervalMinutes <= 0 {
		s.IntervalMinutes = d.IntervalMinutes
	}
	s.IntervalMinutes = schedule.SnapInterval(s.IntervalMinutes)

	switch {
	case s.AutoCheckEnabled && s.NextAutoCheckAt == nil:
		s.NextAutoCheckAt = domain.TimePtr(schedule.NextCheckSlot(now, s.IntervalMinutes))
	case !s.AutoCheckEnabled:
		s.NextAutoCheckAt = nil
	}

	if s.ActiveKeyCursor < 0 {
		s.ActiveKeyCursor = 0
	}
	for i := range s.Credentials {
		if s.Credentials[i].ID == "" {
			s.Credentials[i].ID = uuid.NewString()
		}
	}
	SeedEnvCredentials(s, d.EnvSecrets)

	b := &s.Backup
	if !b.Frequency.Valid() {
		b.Frequency = domain.FrequencyDaily
	}
	tod, err := schedule.ParseTimeOfDay(strings.TrimSpace(b.TimeOfDay))
	if err != nil {
		tod = schedule.TimeOfDay{}
	}
	b.TimeOfDay = tod.String()
	if !b.Format.Valid() {
		b.Format = domain.FormatJSON
	}
	b.TwiceWeeklyNextGapDays = schedule.NormalizeGap(b.TwiceWeeklyNextGapDays)
	b.ChatTargets = NormalizeChatTargets(b.ChatTargets)
	if len(b.ChatTargets) == 0 {
		b.ChatTargets = NormalizeChatTargets(d.ChatTargets)
	}
	switch {
	case b.Enabled && b.NextBackupAt == nil:
		b.NextBackupAt = domain.TimePtr(schedule.FirstBackupSlot(now, tod, loc))
	case !b.Enabled:
		b.NextBackupAt = nil
	}

	after, _ := json.Marshal(s)
	changed := !bytes.Equal(before, after)
	if changed {
		s.UpdatedAt = now
	}
	return changed
}

// SeedEnvCredentials appends an "ENV Key N" credential for every secret that
// is not stored yet. Existing credentials are left untouched.
func SeedEnvCredentials(s *domain.ScheduleSettings, secrets []string) {
	known := make(map[string]bool, len(s.Credentials))
	for _, c := range s.Credentials {
		known[c.Secret] = true
	}
	for i, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" || known[secret] {
			continue
		}
		known[secret] = true
		s.Credentials = append(s.Credentials, domain.ApiCredential{
			ID:       uuid.NewString(),
			Name:     fmt.Sprintf("ENV Key %d", i+1),
			Secret:   secret,
			IsActive: true,
		})
	}
}

// NormalizeChatTargets splits on commas and whitespace, trims and deduplicates.
// It returns nil when no target remains.
func NormalizeChatTargets(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range raw {
		for _, id := range strings.FieldsFunc(item, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		}) {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
