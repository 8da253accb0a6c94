// Package store builds the snapshot store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/pricecast/cmd/pricecast/config"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// New opens the backend named by cfg.Storage. The returned close function
// is never nil. For "none" the store is nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage {
	case "none":
		return nil, noop, nil

	case "memory":
		logger.Info("using in-memory storage")
		s := storage.NewMemoryStore()
		return s, func() error { s.Stop(); return nil }, nil

	case "redis":
		logger.Info("using Redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("redis storage: %w", err)
		}
		return s, s.Close, nil

	case "sqlite":
		logger.Info("using SQLite storage", "path", cfg.SQLitePath)
		s, err := storage.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("sqlite storage: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
