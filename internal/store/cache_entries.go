package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCacheEntry returns the stored value and its expiry. found is false when
// the key is absent.
func (d *DB) GetCacheEntry(ctx context.Context, key string) (value []byte, expiresAt time.Time, found bool, err error) {
	var ms int64
	err = d.Pool.QueryRowContext(ctx, `
SELECT value, expires_at
FROM cache_entries
WHERE key = ?;`, key).Scan(&value, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	return value, time.UnixMilli(ms), true, nil
}

func (d *DB) PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO cache_entries(key, value, expires_at, created_at)
VALUES(?,?,?,?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  expires_at = excluded.expires_at,
  created_at = excluded.created_at;`,
		key, value, expiresAt.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (d *DB) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := d.Pool.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?;`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (d *DB) ClearCacheEntries(ctx context.Context) (int64, error) {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM cache_entries;`)
	if err != nil {
		return 0, fmt.Errorf("clear cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeExpiredCacheEntries deletes rows that expired before now.
func (d *DB) PurgeExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.Pool.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE expires_at <= ?;`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
