package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "serpwatch"

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeStopped = "stopped"
	OutcomeQuota   = "quota_exhausted"
	OutcomeAuth    = "unauthorized"
)

// Scheduler label values.
const (
	SchedulerAutoCheck = "auto_check"
	SchedulerBackup    = "backup"
)

// Metrics holds the collectors of the schedulers and upstream clients. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	sweeps         *prometheus.CounterVec
	brandChecks    *prometheus.CounterVec
	serpRequests   *prometheus.CounterVec
	backups        *prometheus.CounterVec
	backupRecords  prometheus.Counter
	running        *prometheus.GaugeVec
	nextRun        *prometheus.GaugeVec
	sweepDuration  prometheus.Histogram
	backupDuration prometheus.Histogram
}

// New creates and registers the collectors. A nil registerer falls back to the
// default one.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Auto-check sweeps by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		brandChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brand_checks_total",
			Help:      "Per-brand SERP checks by outcome.",
		}, []string{"outcome"}),
		serpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serp_requests_total",
			Help:      "Upstream SERP requests by outcome.",
		}, []string{"outcome"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup runs by source and status.",
		}, []string{"source", "status"}),
		backupRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_records_total",
			Help:      "Records shipped by backups.",
		}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while the scheduler has a job in flight.",
		}, []string{"scheduler"}),
		nextRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_next_run_timestamp_seconds",
			Help:      "Unix time of the next scheduled run, 0 when disabled.",
		}, []string{"scheduler"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of auto-check sweeps.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}

	registerer.MustRegister(
		m.sweeps,
		m.brandChecks,
		m.serpRequests,
		m.backups,
		m.backupRecords,
		m.running,
		m.nextRun,
		m.sweepDuration,
		m.backupDuration,
	)
	return m
}

func (m *Metrics) ObserveSweep(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(trigger, outcome).Inc()
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) IncBrandCheck(outcome string) {
	if m == nil {
		return
	}
	m.brandChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSerpRequest(outcome string) {
	if m == nil {
		return
	}
	m.serpRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBackup(source, status string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(source, status).Inc()
	m.backupRecords.Add(float64(records))
	m.backupDuration.Observe(d.Seconds())
}

// SetRunning flips the in-flight gauge of a scheduler.
func (m *Metrics) SetRunning(scheduler string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.running.WithLabelValues(scheduler).Set(v)
}

// SetNextRun publishes the next run time. A nil time means disabled.
func (m *Metrics) SetNextRun(scheduler string, next *time.Time) {
	if m == nil {
		return
	}
	v := 0.0
	if next != nil {
		v = float64(next.Unix())
	}
	m.nextRun.WithLabelValues(scheduler).Set(v)
}
