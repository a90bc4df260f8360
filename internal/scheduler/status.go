package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned by RunNow while a job is in flight.
var ErrAlreadyRunning = errors.New("scheduler is already running")

type State string

const (
	StateIdle                 State = "idle"
	StateRunning              State = "running"
	StateStoppingWhileRunning State = "stopping_while_running"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopping
)

// Status is the in-memory snapshot of one scheduler.
type Status struct {
	Scheduler         string     `json:"scheduler"`
	State             State      `json:"state"`
	IsRunning         bool       `json:"is_running"`
	StopRequested     bool       `json:"stop_requested"`
	PollInterval      string     `json:"poll_interval"`
	LastRunStartedAt  *time.Time `json:"last_run_started_at,omitempty"`
	LastRunFinishedAt *time.Time `json:"last_run_finished_at,omitempty"`
	LastRunSource     string     `json:"last_run_source,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastSummary       any        `json:"last_summary,omitempty"`
}

// tracker owns the Idle/Running/Stopping state of a scheduler. The state is a
// single atomic so that concurrent triggers race on one compare-and-swap.
type tracker struct {
	name         string
	pollInterval time.Duration

	state atomic.Int32

	mu           sync.Mutex
	lastStarted  *time.Time
	lastFinished *time.Time
	lastSource   string
	lastError    string
	lastSummary  any
}

// acquire moves Idle -> Running. Only one caller wins.
func (t *tracker) acquire() bool {
	return t.state.CompareAndSwap(stateIdle, stateRunning)
}

// abandon returns to Idle without touching the bookkeeping.
func (t *tracker) abandon() {
	t.state.Store(stateIdle)
}

func (t *tracker) begin(source string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastStarted = &at
	t.lastSource = source
	t.lastError = ""
}

func (t *tracker) finish(at time.Time, summary any, err error) {
	t.mu.Lock()
	t.lastFinished = &at
	t.lastSummary = summary
	t.lastError = ""
	if err != nil {
		t.lastError = err.Error()
	}
	t.mu.Unlock()

	t.state.Store(stateIdle)
}

// requestStop moves Running -> Stopping. It reports whether a job was in flight.
func (t *tracker) requestStop() bool {
	if t.state.CompareAndSwap(stateRunning, stateStopping) {
		return true
	}
	return t.state.Load() == stateStopping
}

func (t *tracker) stopRequested() bool {
	return t.state.Load() == stateStopping
}

func (t *tracker) running() bool {
	return t.state.Load() != stateIdle
}

func (t *tracker) snapshot() Status {
	st := Status{
		Scheduler:    t.name,
		PollInterval: t.pollInterval.String(),
	}
	switch t.state.Load() {
	case stateRunning:
		st.State, st.IsRunning = StateRunning, true
	case stateStopping:
		st.State, st.IsRunning, st.StopRequested = StateStoppingWhileRunning, true, true
	default:
		st.State = StateIdle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st.LastRunStartedAt = t.lastStarted
	st.LastRunFinishedAt = t.lastFinished
	st.LastRunSource = t.lastSource
	st.LastError = t.lastError
	st.LastSummary = t.lastSummary
	return st
}
