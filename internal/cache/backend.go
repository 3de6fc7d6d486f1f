package cache

import (
	"context"
	"fmt"
	"strings"
)

type Config struct {
	Backend     string
	SQLitePath  string
	RedisURL    string
	PostgresURL string
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)
	case "redis":
		return NewRedis(ctx, cfg.RedisURL)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresURL)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
