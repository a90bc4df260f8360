package deps

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/serpwatch/internal/admin"
	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/keypool"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

// Admin is the part of admin.Service the routes call.
type Admin interface {
	Status(ctx context.Context) (admin.StatusReport, error)
	UpdateSchedule(ctx context.Context, u admin.ScheduleUpdate) (*domain.ScheduleSettings, error)
	StopAutoCheck(ctx context.Context) (admin.StopResult, error)
	RunAutoCheck(ctx context.Context) (scheduler.Status, error)
	UpdateBackup(ctx context.Context, u admin.BackupUpdate) (*domain.ScheduleSettings, error)
	RunBackup(ctx context.Context) (scheduler.Status, error)
	TestTelegram(ctx context.Context, in admin.TelegramTest) (telegram.TargetReport, error)
	Keys(ctx context.Context) (keypool.Summary, error)
	AddKey(ctx context.Context, in admin.KeyInput) (*domain.ScheduleSettings, error)
	UpdateKey(ctx context.Context, id string, in admin.KeyInput) (*domain.ScheduleSettings, error)
}

// Pinger reports whether a backing store answers.
type Pinger func(ctx context.Context) error

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time    // for testing, defaults to time.Now
	AllowedCIDRS    []string            // IPs allowed to reach the ops and admin endpoints
	TrustProxy      bool                // true if running behind a trusted reverse proxy (e.g., cloudflared)
	AdminRateBurst  int                 // per-IP burst on /api/admin
	AdminRatePerMin int                 // per-IP refill on /api/admin
	Admin           Admin               // settings and scheduler control
	Readiness       map[string]Pinger   // backing stores checked by /readyz
	Gatherer        prometheus.Gatherer // served on /metrics
	ReloadTrigger   chan struct{}       // manual catalog reload (nil if no catalog file)
}

func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
