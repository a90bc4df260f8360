package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/serpwatch/internal/admin"
	"github.com/MrSnakeDoc/serpwatch/internal/domain"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/keypool"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/metrics"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

type fakeAdmin struct {
	err        error
	lastUpdate admin.ScheduleUpdate
	lastKeyID  string
}

func (f *fakeAdmin) Status(context.Context) (admin.StatusReport, error) {
	return admin.StatusReport{Settings: &domain.ScheduleSettings{IntervalMinutes: 60}}, f.err
}

func (f *fakeAdmin) UpdateSchedule(_ context.Context, u admin.ScheduleUpdate) (*domain.ScheduleSettings, error) {
	f.lastUpdate = u
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ScheduleSettings{IntervalMinutes: *u.IntervalMinutes}, nil
}

func (f *fakeAdmin) StopAutoCheck(context.Context) (admin.StopResult, error) {
	return admin.StopResult{StopRequested: true}, f.err
}

func (f *fakeAdmin) RunAutoCheck(context.Context) (scheduler.Status, error) {
	return scheduler.Status{Scheduler: "auto_check", IsRunning: f.err == nil}, f.err
}

func (f *fakeAdmin) UpdateBackup(context.Context, admin.BackupUpdate) (*domain.ScheduleSettings, error) {
	return &domain.ScheduleSettings{}, f.err
}

func (f *fakeAdmin) RunBackup(context.Context) (scheduler.Status, error) {
	return scheduler.Status{Scheduler: "backup"}, f.err
}

func (f *fakeAdmin) TestTelegram(context.Context, admin.TelegramTest) (telegram.TargetReport, error) {
	return telegram.TargetReport{Total: 2, OKCount: 1, FailCount: 1}, f.err
}

func (f *fakeAdmin) Keys(context.Context) (keypool.Summary, error) {
	return keypool.Summary{ActiveKeyCount: 1}, f.err
}

func (f *fakeAdmin) AddKey(context.Context, admin.KeyInput) (*domain.ScheduleSettings, error) {
	return &domain.ScheduleSettings{}, f.err
}

func (f *fakeAdmin) UpdateKey(_ context.Context, id string, _ admin.KeyInput) (*domain.ScheduleSettings, error) {
	f.lastKeyID = id
	return &domain.ScheduleSettings{}, f.err
}

func newTestDeps(a deps.Admin) deps.Deps {
	return deps.Deps{
		Logger:          logger.New("error", false),
		StartTime:       time.Now().Add(-time.Minute),
		Version:         "test",
		TrustProxy:      false,
		AdminRateBurst:  100,
		AdminRatePerMin: 100,
		Admin:           a,
		Readiness: map[string]deps.Pinger{
			"redis":    func(context.Context) error { return nil },
			"postgres": func(context.Context) error { return nil },
		},
		ReloadTrigger: make(chan struct{}, 1),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:50000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		want   int
	}{
		{name: "status", method: http.MethodGet, path: "/api/admin/status", want: http.StatusOK},
		{name: "run auto-check", method: http.MethodPost, path: "/api/admin/auto-check/run", want: http.StatusAccepted},
		{name: "run auto-check conflict", method: http.MethodPost, path: "/api/admin/auto-check/run", err: scheduler.ErrAlreadyRunning, want: http.StatusConflict},
		{name: "stop auto-check", method: http.MethodPost, path: "/api/admin/auto-check/stop", want: http.StatusOK},
		{name: "schedule", method: http.MethodPatch, path: "/api/admin/settings/schedule", body: `{"interval_minutes":30}`, want: http.StatusOK},
		{name: "schedule conflict", method: http.MethodPatch, path: "/api/admin/settings/schedule", body: `{"interval_minutes":30}`, err: admin.ErrIntervalChangeWhileEnabled, want: http.StatusConflict},
		{name: "schedule validation", method: http.MethodPatch, path: "/api/admin/settings/schedule", body: `{"interval_minutes":45}`, err: &admin.ValidationError{Field: "interval_minutes", Message: "must be one of: 15, 30, 60"}, want: http.StatusBadRequest},
		{name: "schedule bad json", method: http.MethodPatch, path: "/api/admin/settings/schedule", body: `{`, want: http.StatusBadRequest},
		{name: "backup settings", method: http.MethodPatch, path: "/api/admin/settings/backup", body: `{"enabled":true}`, want: http.StatusOK},
		{name: "run backup", method: http.MethodPost, path: "/api/admin/backup/run", want: http.StatusAccepted},
		{name: "run backup conflict", method: http.MethodPost, path: "/api/admin/backup/run", err: scheduler.ErrAlreadyRunning, want: http.StatusConflict},
		{name: "telegram test", method: http.MethodPost, path: "/api/admin/backup/test-telegram", want: http.StatusOK},
		{name: "telegram not configured", method: http.MethodPost, path: "/api/admin/backup/test-telegram", err: telegram.ErrNotConfigured, want: http.StatusBadRequest},
		{name: "list keys", method: http.MethodGet, path: "/api/admin/keys", want: http.StatusOK},
		{name: "add key", method: http.MethodPost, path: "/api/admin/keys", body: `{"name":"a","key":"b"}`, want: http.StatusCreated},
		{name: "update key", method: http.MethodPatch, path: "/api/admin/keys/k1", body: `{"is_active":false}`, want: http.StatusOK},
		{name: "update missing key", method: http.MethodPatch, path: "/api/admin/keys/k1", body: `{}`, err: admin.ErrKeyNotFound, want: http.StatusNotFound},
		{name: "unknown error", method: http.MethodGet, path: "/api/admin/keys", err: errors.New("redis: connection refused"), want: http.StatusInternalServerError},
		{name: "catalog reload", method: http.MethodPost, path: "/api/admin/catalog/reload", want: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAdmin{err: tt.err}
			h := NewRouter(logger.New("error", false), newTestDeps(fa))

			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "redis") {
				t.Errorf("internal error leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestUpdateKeyPassesID(t *testing.T) {
	fa := &fakeAdmin{}
	h := NewRouter(logger.New("error", false), newTestDeps(fa))

	do(t, h, http.MethodPatch, "/api/admin/keys/abc-123", `{"name":"renamed"}`)
	if fa.lastKeyID != "abc-123" {
		t.Errorf("key id = %q, want abc-123", fa.lastKeyID)
	}
}

func TestTelegramTestReportsOK(t *testing.T) {
	h := NewRouter(logger.New("error", false), newTestDeps(&fakeAdmin{}))

	rec := do(t, h, http.MethodPost, "/api/admin/backup/test-telegram", `{"message":"hi"}`)
	var body struct {
		OK        bool `json:"ok"`
		Total     int  `json:"total"`
		FailCount int  `json:"fail_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.OK || body.Total != 2 || body.FailCount != 1 {
		t.Errorf("body = %+v, want ok=false total=2 fail=1", body)
	}
}

func TestCatalogReloadBusy(t *testing.T) {
	d := newTestDeps(&fakeAdmin{})
	h := NewRouter(logger.New("error", false), d)

	if rec := do(t, h, http.MethodPost, "/api/admin/catalog/reload", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first reload = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/admin/catalog/reload", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second reload = %d, want 429", rec.Code)
	}

	d.ReloadTrigger = nil
	h = NewRouter(logger.New("error", false), d)
	if rec := do(t, h, http.MethodPost, "/api/admin/catalog/reload", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("reload without catalog = %d, want 404", rec.Code)
	}
}

func TestAllowedCIDRs(t *testing.T) {
	d := newTestDeps(&fakeAdmin{})
	d.AllowedCIDRS = []string{"192.168.0.0/16"}
	h := NewRouter(logger.New("error", false), d)

	if rec := do(t, h, http.MethodGet, "/api/admin/status", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("status from 10.0.0.1 = %d, want 403", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	d := newTestDeps(&fakeAdmin{})
	h := NewRouter(logger.New("error", false), d)

	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", rec.Code)
	}

	d.Readiness["postgres"] = func(context.Context) error { return errors.New("connection refused") }
	h = NewRouter(logger.New("error", false), d)
	rec := do(t, h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}

	var body struct {
		Ready bool `json:"ready"`
		Components map[string]struct {
			OK bool `json:"ok"`
		} `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Ready || !body.Components["redis"].OK || body.Components["postgres"].OK {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveSweep(string(domain.TriggerAuto), metrics.OutcomeOK, time.Second)

	d := newTestDeps(&fakeAdmin{})
	d.Gatherer = reg
	h := NewRouter(logger.New("error", false), d)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "serpwatch_sweeps_total") {
		t.Errorf("metrics body misses serpwatch_sweeps_total")
	}
}
