// Package db opens the pgx connection pool the journal writer runs on.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"lottery-group-bot/internal/config"
)

// Pool wraps pgxpool.Pool so the composition root owns its lifecycle.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects and pings. All sizing knobs come from the database
// config section, which carries defaults for every field.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns = int32(cfg.PoolSize)
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Name).
		Int("pool_size", cfg.PoolSize).Msg("connected to postgres")
	return &Pool{Pool: pool}, nil
}

// Close releases the pool. Safe on a nil receiver field.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
