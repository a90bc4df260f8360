package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	redisstore "github.com/MrSnakeDoc/serpwatch/internal/store/redis"
)

// Observer is told about scheduler state and settings changes.
type Observer interface {
	Notify(ctx context.Context, source string, payload any)
}

type ObserverFunc func(ctx context.Context, source string, payload any)

func (f ObserverFunc) Notify(ctx context.Context, source string, payload any) {
	f(ctx, source, payload)
}

// Observers fans a change out to every observer. A panicking observer is
// logged and skipped. A nil *Observers notifies nobody.
type Observers struct {
	list   []Observer
	logger logger.Logger
}

func NewObservers(log logger.Logger, observers ...Observer) *Observers {
	return &Observers{list: observers, logger: log}
}

func (o *Observers) Notify(ctx context.Context, source string, payload any) {
	if o == nil {
		return
	}
	for _, obs := range o.list {
		o.notifyOne(ctx, obs, source, payload)
	}
}

func (o *Observers) notifyOne(ctx context.Context, obs Observer, source string, payload any) {
	defer func() {
		if r := recover(); r != nil && o.logger != nil {
			o.logger.Warn("observer panicked",
				logger.String("source", source),
				logger.Any("panic", r))
		}
	}()
	obs.Notify(ctx, source, payload)
}

// RedisPublisher forwards every change to the Redis events channel so other
// processes and UIs can follow the schedulers.
type RedisPublisher struct {
	store   *redisstore.Store
	logger  logger.Logger
	timeout time.Duration
}

func NewRedisPublisher(store *redisstore.Store, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{store: store, logger: log, timeout: 2 * time.Second}
}

func (p *RedisPublisher) Notify(ctx context.Context, source string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err := p.store.Publish(ctx, redisstore.Event{Source: source, At: time.Now(), Data: payload})
	if err != nil {
		p.logger.Warn("failed to publish scheduler event",
			logger.String("source", source),
			logger.Error(err))
	}
}
