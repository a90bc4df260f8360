package postgres

import (
	"context"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/MrSnakeDoc/serpwatch/internal/connect"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

type ConnectOptions struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Retry connect.Policy
}

// Open returns a pooled handle once Postgres accepts connections.
func Open(ctx context.Context, opts ConnectOptions, log logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", opts.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	target := connect.Target{Name: "postgres", Addr: redactURL(opts.URL)}
	if err := connect.Wait(ctx, target, opts.Retry, db.PingContext, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// redactURL keeps host and database, dropping credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "postgres"
	}
	return u.Host + u.Path
}
