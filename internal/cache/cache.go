// Package cache stores orchestration results keyed by normalized search
// parameters, on top of a pluggable backend.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
)

const DefaultTTL = 6 * time.Hour

// Backend stores opaque values with a time to live. A missing or expired key
// reports found=false with no error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

type envelope struct {
	Result    *domain.OrchestrationResult `json:"result"`
	CachedAt  time.Time                   `json:"cached_at"`
	ExpiresAt time.Time                   `json:"expires_at"`
}

type Cache struct {
	backend Backend
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func New(backend Backend, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{backend: backend, ttl: ttl, log: log.Named("cache"), now: time.Now}
}

// Key derives the cache key for a search. Keyword order and case, location
// case, filter case and filter order do not matter.
func Key(keywords []string, location string, filters map[string]string) string {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		kws = append(kws, strings.ToLower(k))
	}
	sort.Strings(kws)

	pairs := make([][2]string, 0, len(filters))
	for k, v := range filters {
		pairs = append(pairs, [2]string{strings.ToLower(k), strings.ToLower(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	// JSON keeps separators inside values from colliding with pair boundaries
	enc, _ := json.Marshal(pairs)
	fh := sha256.Sum256(enc)

	parts := []string{
		strings.Join(kws, ":"),
		strings.ToLower(location),
		hex.EncodeToString(fh[:])[:8],
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached result for key. Backend errors, corrupt entries and
// expired entries are all misses; the latter two are deleted.
func (c *Cache) Get(ctx context.Context, key string) (*domain.OrchestrationResult, bool) {
	raw, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Result == nil {
		c.log.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.delete(ctx, key)
		return nil, false
	}
	if !c.now().Before(env.ExpiresAt) {
		c.delete(ctx, key)
		return nil, false
	}

	c.log.Debug("cache hit", zap.String("key", key), zap.Int("jobs", len(env.Result.Jobs)))
	return env.Result, true
}

// Set stores res under key for the configured TTL. Failures are logged and
// otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, res *domain.OrchestrationResult) {
	now := c.now()
	b, err := json.Marshal(envelope{Result: res, CachedAt: now, ExpiresAt: now.Add(c.ttl)})
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.SetWithTTL(ctx, key, b, c.ttl); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.log.Debug("cached result", zap.String("key", key), zap.Int("jobs", len(res.Jobs)))
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

func (c *Cache) ClearAll(ctx context.Context) error {
	return c.backend.Clear(ctx)
}

func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) delete(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
