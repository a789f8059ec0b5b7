package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailops/notifier/internal/platform/env"
)

// Watermark reads and writes are tiny and rare, so the pool stays small.
const (
	defaultMinConns        = 1
	defaultMaxConns        = 4
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
	defaultHealthCheck     = 30 * time.Second
	connectTimeout         = 5 * time.Second
)

type Limits struct {
	MinConns int
	MaxConns int
}

// LimitsFromEnv reads DB_MIN_CONNS and DB_MAX_CONNS and clamps them to a
// usable range.
func LimitsFromEnv() Limits {
	return clamp(Limits{
		MinConns: env.Int("DB_MIN_CONNS", defaultMinConns),
		MaxConns: env.Int("DB_MAX_CONNS", defaultMaxConns),
	})
}

func clamp(l Limits) Limits {
	if l.MinConns < 0 {
		l.MinConns = defaultMinConns
	}
	if l.MaxConns <= 0 {
		l.MaxConns = defaultMaxConns
	}
	if l.MinConns > l.MaxConns {
		l.MinConns = l.MaxConns
	}
	return l
}

// New parses databaseURL, applies limits and verifies the server answers.
func New(ctx context.Context, databaseURL string, limits Limits) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	limits = clamp(limits)
	cfg.MinConns = int32(limits.MinConns)
	cfg.MaxConns = int32(limits.MaxConns)
	cfg.MaxConnLifetime = env.Duration("DB_MAX_CONN_LIFETIME", defaultMaxConnLifetime)
	cfg.MaxConnIdleTime = env.Duration("DB_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime)
	cfg.HealthCheckPeriod = env.Duration("DB_HEALTH_CHECK_PERIOD", defaultHealthCheck)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
