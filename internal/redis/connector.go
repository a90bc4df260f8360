package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/serpwatch/internal/connect"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// ConnectOptions defines the Redis client and its startup retry policy.
type ConnectOptions struct {
	Addr         string // ex: "localhost:6379"
	User         string // optional
	Password     string // optional
	RedisDB      int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	Retry connect.Policy
}

// New returns a client once Redis answers a PING, retrying with exponential
// backoff until the policy timeout is reached.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := connect.Wait(ctx, connect.Target{Name: "redis", Addr: opts.Addr}, opts.Retry, ping, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
