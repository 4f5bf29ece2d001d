package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Options selects the backing store.
type Options struct {
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
}

// Open returns the store described by opts together with a function that
// releases its connections. Without a DatabaseURL the store is in-memory.
// A RedisURL adds a market cache in front of PostgreSQL.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	if opts.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	pg := NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	if opts.RedisURL == "" {
		return pg, pool.Close, nil
	}

	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(ro)
	slog.Info("Redis cache enabled", "ttl", opts.CacheTTL)

	closeAll := func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("redis close", "err", err)
		}
		pool.Close()
	}
	return NewCachedStore(pg, rdb, opts.CacheTTL), closeAll, nil
}
