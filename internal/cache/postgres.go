package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps entries in a cache_entries table shared by every engine
// pointed at the same database.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cache_entries (
  key TEXT PRIMARY KEY,
  value BYTEA NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL
)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cache_entries: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val []byte
		exp time.Time
	)
	err := p.pool.QueryRow(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = $1`, key).Scan(&val, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !p.now().Before(exp) {
		return nil, false, p.Delete(ctx, key)
	}
	return val, true, nil
}

func (p *Postgres) SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO cache_entries (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, val, p.now().Add(ttl))
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	return err
}

func (p *Postgres) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM cache_entries`)
	return err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
