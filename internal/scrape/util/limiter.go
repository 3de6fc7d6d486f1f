package util

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per hostname so that parallel sources
// hitting the same API share its budget. Hosts get the default rate unless
// an override names them.
type HostLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	def       rate.Limit
	burst     int
	overrides map[string]rate.Limit
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	return &HostLimiter{
		buckets:   make(map[string]*rate.Limiter),
		def:       rate.Limit(reqPerSec),
		burst:     max(burst, 1),
		overrides: make(map[string]rate.Limit),
	}
}

// Override sets the rate for one host, replacing any bucket already handed
// out for it.
func (hl *HostLimiter) Override(host string, reqPerSec float64) {
	host = strings.ToLower(strings.TrimSpace(host))
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.overrides[host] = rate.Limit(reqPerSec)
	if b, ok := hl.buckets[host]; ok {
		b.SetLimit(rate.Limit(reqPerSec))
	}
}

func (hl *HostLimiter) bucket(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if b, ok := hl.buckets[host]; ok {
		return b
	}
	r, ok := hl.overrides[host]
	if !ok {
		r = hl.def
	}
	b := rate.NewLimiter(r, hl.burst)
	hl.buckets[host] = b
	return b
}

// WaitURL blocks until the host of raw may be hit again. Unparseable URLs
// share one bucket. A nil limiter never blocks.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return ctx.Err()
	}
	host := "_"
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	}
	return hl.bucket(host).Wait(ctx)
}

// Hosts reports how many hosts have been contacted.
func (hl *HostLimiter) Hosts() int {
	if hl == nil {
		return 0
	}
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.buckets)
}
