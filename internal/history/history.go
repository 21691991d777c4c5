// Package history persists room chat lines to a file, Redis or PostgreSQL
// backend.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/history/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Config.Backend.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// DefaultDir is where the file backend writes when no directory is set.
const DefaultDir = "chat_history"

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown history backend")

// Store is a chat.History that holds resources.
type Store interface {
	chat.History
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`

	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	RedisMaxLen    int64  `yaml:"redis_max_len"`

	PostgresDSN string `yaml:"postgres_dsn"`
}

// Open builds the configured backend. Redis and PostgreSQL connections are
// verified before returning, and PostgreSQL migrations are applied.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", BackendFile:
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		store, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		logger.Info("history backend ready", "backend", BackendFile, "dir", dir)
		return store, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("history backend ready", "backend", BackendRedis, "addr", cfg.RedisAddr)
		return NewRedisStore(client, cfg.RedisKeyPrefix, cfg.RedisMaxLen), nil

	case BackendPostgres:
		if err := migrate(cfg.PostgresDSN, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("history backend ready", "backend", BackendPostgres)
		return NewPostgresStore(pool), nil

	case BackendNone:
		logger.Info("history disabled")
		return nopStore{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

func migrate(dsn string, logger *slog.Logger) error {
	m, err := migrations.New(dsn, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn("close migrator", "error", cerr)
		}
	}()
	return m.Up()
}

type nopStore struct {
	chat.NopHistory
}

func (nopStore) Close() error { return nil }
