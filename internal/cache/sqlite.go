package cache

import (
	"context"
	"fmt"
	"time"

	"jobscout-engine/internal/store"
)

// SQLite keeps entries in the cache_entries table of a local database file.
type SQLite struct {
	db  *store.DB
	now func() time.Time
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, exp, found, err := s.db.GetCacheEntry(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if !s.now().Before(exp) {
		return nil, false, s.db.DeleteCacheEntry(ctx, key)
	}
	return val, true, nil
}

func (s *SQLite) SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.db.PutCacheEntry(ctx, key, val, s.now().Add(ttl))
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.db.DeleteCacheEntry(ctx, key)
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ClearCacheEntries(ctx)
	return err
}

// Purge deletes every expired row.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	return s.db.PurgeExpiredCacheEntries(ctx, s.now())
}

func (s *SQLite) Close() error { return s.db.Close() }
