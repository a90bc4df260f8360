package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// Policy is the retry behavior used while a backing store comes up.
type Policy struct {
	Timeout       time.Duration // total time allowed for all attempts (ex: 30s)
	RetryInterval time.Duration // first wait between attempts, doubled each time (ex: 2s)
	MaxWait       time.Duration // cap on the wait between attempts (ex: 10s)
	PingTimeout   time.Duration // bound of a single attempt (ex: 5s)
	WarnThreshold int           // attempts logged as warnings before escalating to errors
}

// Validate reports the first unusable value.
func (p Policy) Validate() error {
	switch {
	case p.Timeout <= 0:
		return fmt.Errorf("connect timeout must be > 0, got %v", p.Timeout)
	case p.RetryInterval <= 0:
		return fmt.Errorf("retry interval must be > 0, got %v", p.RetryInterval)
	case p.MaxWait <= 0:
		return fmt.Errorf("max wait must be > 0, got %v", p.MaxWait)
	case p.PingTimeout <= 0:
		return fmt.Errorf("ping timeout must be > 0, got %v", p.PingTimeout)
	case p.WarnThreshold < 0:
		return fmt.Errorf("warn threshold must be >= 0, got %d", p.WarnThreshold)
	}
	return nil
}

// PingFunc is one connection attempt.
type PingFunc func(ctx context.Context) error

// Target names what is being dialed, for logs and errors.
type Target struct {
	Name string // "redis", "postgres"
	Addr string // redacted address
}

// Wait pings until it succeeds or the policy timeout elapses, backing off
// exponentially between attempts.
func Wait(ctx context.Context, t Target, p Policy, ping PingFunc, log logger.Logger) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid %s connect policy: %w", t.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	log = log.With(logger.String("backend", t.Name), logger.String("addr", t.Addr))
	log.Info("connecting", logger.Duration("timeout", p.Timeout))

	start := time.Now()
	wait := p.RetryInterval
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, p.PingTimeout)
		err := ping(pingCtx)
		pingCancel()

		if err == nil {
			if attempt > 1 {
				log.Warn("connected after retry",
					logger.Int("attempts", attempt),
					logger.Duration("elapsed", time.Since(start)))
			} else {
				log.Info("connected")
			}
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Error("unavailable, giving up",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", p.Timeout),
				logger.Error(err))
			return fmt.Errorf("%s unavailable at %s after %d attempts (timeout: %v): %w",
				t.Name, t.Addr, attempt, p.Timeout, err)

		case <-timer.C:
			logRetry(log, attempt, timeLeft(ctx), wait, p.WarnThreshold, err)
			wait = min(wait*2, p.MaxWait)
		}
	}
}

func logRetry(log logger.Logger, attempt int, remaining, next time.Duration, warnThreshold int, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", next),
		logger.Error(err),
	}
	switch {
	case remaining < 10*time.Second:
		log.Error("still down, timeout approaching", append(fields, logger.Duration("remaining", remaining))...)
	case attempt <= warnThreshold:
		log.Warn("connection failed, retrying", fields...)
	default:
		log.Error("still unavailable, attempts failing", fields...)
	}
}

func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
