package keypool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/serp"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
)

var ErrNoActiveKey = errors.New("no active serp key")

// DefaultMonthlyLimit is the plan size assumed when none is configured.
const DefaultMonthlyLimit = 2500

// MonthlyCounter counts the requests made per key id since monthStart,
// from the run history.
type MonthlyCounter interface {
	MonthlyKeyUsage(ctx context.Context, monthStart time.Time) (map[string]int64, error)
}

// Pool rotates the stored credentials round-robin. The cursor and the per key
// bookkeeping live in the settings document, so every call is a read-modify-write.
type Pool struct {
	repo         settings.Repository
	counter      MonthlyCounter
	monthlyLimit int64
	loc          *time.Location
	logger       logger.Logger
	now          func() time.Time
}

func New(repo settings.Repository, counter MonthlyCounter, monthlyLimit int, loc *time.Location, log logger.Logger) *Pool {
	if monthlyLimit <= 0 {
		monthlyLimit = DefaultMonthlyLimit
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Pool{
		repo:         repo,
		counter:      counter,
		monthlyLimit: int64(monthlyLimit),
		loc:          loc,
		logger:       log,
		now:          time.Now,
	}
}

// Next returns active[cursor mod n] and advances the cursor.
func (p *Pool) Next(ctx context.Context) (domain.ApiCredential, error) {
	c, _, err := p.next(ctx)
	return c, err
}

func (p *Pool) next(ctx context.Context) (domain.ApiCredential, int, error) {
	var picked domain.ApiCredential
	var active int

	_, err := settings.Update(ctx, p.repo, func(s *domain.ScheduleSettings) error {
		keys := s.ActiveCredentials()
		active = len(keys)
		if active == 0 {
			return ErrNoActiveKey
		}
		cursor := s.ActiveKeyCursor
		if cursor < 0 {
			cursor = 0
		}
		picked = keys[cursor%active]
		s.ActiveKeyCursor = (cursor + 1) % active
		return nil
	})
	if err != nil {
		return domain.ApiCredential{}, 0, err
	}
	return picked, active, nil
}

// RecordUsage stamps the outcome of one upstream call on the credential.
// Quota errors set ExhaustedAt but never deactivate the key.
func (p *Pool) RecordUsage(ctx context.Context, keyID string, callErr error) error {
	now := p.now()
	_, err := settings.Update(ctx, p.repo, func(s *domain.ScheduleSettings) error {
		c := s.Credential(keyID)
		if c == nil {
			return nil
		}
		c.LastUsedAt = domain.TimePtr(now)
		c.RequestCountLifetime++
		if callErr == nil {
			c.LastError = ""
			c.ExhaustedAt = nil
			return nil
		}
		c.LastError = callErr.Error()
		if errors.Is(callErr, serp.ErrQuotaExhausted) {
			c.ExhaustedAt = domain.TimePtr(now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record key usage: %w", err)
	}
	return nil
}

// Do runs fn with the next key. When the key reports quota exhaustion the call
// is retried with the following key, at most once per active key. It returns
// the id of the last key used and the outcome of fn; a bookkeeping failure is
// only logged.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, c domain.ApiCredential) error) (string, error) {
	key, attempts, err := p.next(ctx)
	if err != nil {
		return "", err
	}

	for i := 1; ; i++ {
		callErr := fn(ctx, key)
		if err := p.RecordUsage(ctx, key.ID, callErr); err != nil {
			p.logger.Warn("failed to record serp key usage",
				logger.String("key_id", key.ID),
				logger.Error(err))
		}
		if callErr == nil || !errors.Is(callErr, serp.ErrQuotaExhausted) || i >= attempts {
			return key.ID, callErr
		}
		if ctx.Err() != nil {
			return key.ID, ctx.Err()
		}
		if key, _, err = p.next(ctx); err != nil {
			return "", err
		}
	}
}

type KeyRef struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at"`
	LastError  string     `json:"last_error"`
}

type KeyUsage struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	MaskedSecret       string     `json:"masked_key"`
	IsActive           bool       `json:"is_active"`
	MonthlyLimit       int64      `json:"monthly_limit"`
	RequestsThisMonth  int64      `json:"requests_this_month"`
	RequestsLifetime   int64      `json:"requests_lifetime"`
	Remaining          int64      `json:"remaining_estimated"`
	BaselineRemaining  *int       `json:"baseline_remaining"`
	BaselineCapturedAt *time.Time `json:"baseline_captured_at"`
	ExhaustedAt        *time.Time `json:"exhausted_at"`
	LastUsedAt         *time.Time `json:"last_used_at"`
	LastError          string     `json:"last_error"`
}

type Summary struct {
	Keys           []KeyUsage `json:"keys"`
	ActiveKeyCount int        `json:"active_key_count"`
	ActiveCursor   int        `json:"active_cursor"`
	RotationKey    *KeyRef    `json:"rotation_key"`
	LastUsedKey    *KeyRef    `json:"last_used_key"`
}

// Usage summarizes every stored key. Remaining is an estimate: the monthly
// limit minus the lifetime request count, floored at zero.
func (p *Pool) Usage(ctx context.Context, s *domain.ScheduleSettings) (Summary, error) {
	now := p.now().In(p.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.loc)

	monthly := map[string]int64{}
	if p.counter != nil {
		counts, err := p.counter.MonthlyKeyUsage(ctx, monthStart)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to count monthly key usage: %w", err)
		}
		monthly = counts
	}

	out := Summary{
		Keys:         make([]KeyUsage, 0, len(s.Credentials)),
		ActiveCursor: s.ActiveKeyCursor,
	}
	for _, c := range s.Credentials {
		out.Keys = append(out.Keys, KeyUsage{
			ID:                 c.ID,
			Name:               c.Name,
			MaskedSecret:       domain.MaskSecret(c.Secret),
			IsActive:           c.IsActive,
			MonthlyLimit:       p.monthlyLimit,
			RequestsThisMonth:  monthly[c.ID],
			RequestsLifetime:   c.RequestCountLifetime,
			Remaining:          max(p.monthlyLimit-c.RequestCountLifetime, 0),
			BaselineRemaining:  c.BaselineRemaining,
			BaselineCapturedAt: c.BaselineCapturedAt,
			ExhaustedAt:        c.ExhaustedAt,
			LastUsedAt:         c.LastUsedAt,
			LastError:          c.LastError,
		})
	}

	active := s.ActiveCredentials()
	out.ActiveKeyCount = len(active)
	if len(active) > 0 {
		out.RotationKey = ref(active[max(s.ActiveKeyCursor, 0)%len(active)])
	}

	used := make([]domain.ApiCredential, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c.LastUsedAt != nil {
			used = append(used, c)
		}
	}
	sort.SliceStable(used, func(i, j int) bool { return used[i].LastUsedAt.After(*used[j].LastUsedAt) })
	if len(used) > 0 {
		out.LastUsedKey = ref(used[0])
	}
	return out, nil
}

func ref(c domain.ApiCredential) *KeyRef {
	return &KeyRef{ID: c.ID, Name: c.Name, LastUsedAt: c.LastUsedAt, LastError: c.LastError}
}
