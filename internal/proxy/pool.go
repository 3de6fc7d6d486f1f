package proxy

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobscout-engine/internal/scheduler"
	"jobscout-engine/internal/scrape/util"
)

const topK = 5

type Config struct {
	Feeds             []string
	ProbeURL          string
	MinSize           int
	MaxSize           int
	RefreshInterval   time.Duration
	ValidationTimeout time.Duration
	ValidateSample    int
	ValidateParallel  int
	MaxCandidates     int
	LatencyCeiling    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeURL == "" {
		c.ProbeURL = "https://httpbin.org/ip"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 50
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Hour
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = 10 * time.Second
	}
	if c.ValidateSample <= 0 {
		c.ValidateSample = 50
	}
	if c.ValidateParallel <= 0 {
		c.ValidateParallel = 10
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 200
	}
	if c.LatencyCeiling <= 0 {
		c.LatencyCeiling = DefaultLatencyCeiling
	}
	return c
}

type Stats struct {
	Size        int       `json:"size"`
	Healthy     int       `json:"healthy"`
	Blacklisted int       `json:"blacklisted"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
}

type Pool struct {
	cfg     Config
	log     *zap.Logger
	hc      *http.Client
	limiter *util.HostLimiter

	// refillMu serializes feed fetch + validation rounds.
	refillMu sync.Mutex

	mu          sync.Mutex
	proxies     map[string]*Proxy // by URL
	blacklist   map[string]bool   // by host:port
	lastRefresh time.Time
	initialized bool
	stop        context.CancelFunc
	closed      bool

	pick func(n int) int
}

func NewPool(cfg Config, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pool{
		cfg:       cfg.withDefaults(),
		log:       log.Named("proxy"),
		hc:        hc,
		limiter:   limiter,
		proxies:   make(map[string]*Proxy),
		blacklist: make(map[string]bool),
		pick:      rand.IntN,
	}
}

// Start fills the pool and keeps it topped up every RefreshInterval until ctx
// is done or Close is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.closed || p.stop != nil {
		p.mu.Unlock()
		cancel()
		return
	}
	p.stop = cancel
	p.mu.Unlock()

	go scheduler.Every(ctx, p.cfg.RefreshInterval, "proxy-refresh", p.log, p.maintain)
}

func (p *Pool) maintain(ctx context.Context) error {
	if !p.isInitialized() {
		return p.ensureInit(ctx)
	}
	if err := p.HealthCheck(ctx); err != nil {
		return err
	}
	if healthy := p.Stats().Healthy; healthy < p.cfg.MinSize {
		p.log.Info("proxy pool running low, refreshing", zap.Int("healthy", healthy), zap.Int("min_size", p.cfg.MinSize))
		return p.Refresh(ctx)
	}
	return nil
}

func (p *Pool) isInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// ensureInit runs the first fill. A failed or cancelled fill leaves the pool
// uninitialized so the next caller tries again.
func (p *Pool) ensureInit(ctx context.Context) error {
	if p.isInitialized() {
		return nil
	}
	p.refillMu.Lock()
	defer p.refillMu.Unlock()
	if p.isInitialized() {
		return nil
	}
	return p.refreshAndMark(ctx)
}

// Refresh fetches the feeds and validates a sample of new candidates.
// Candidates that answer the probe join the pool (up to MaxSize); the rest
// are blacklisted.
func (p *Pool) Refresh(ctx context.Context) error {
	p.refillMu.Lock()
	defer p.refillMu.Unlock()
	return p.refreshAndMark(ctx)
}

func (p *Pool) refreshAndMark(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	return nil
}

func (p *Pool) refresh(ctx context.Context) error {
	candidates, err := p.fetchCandidates(ctx)
	if err != nil {
		return fmt.Errorf("fetch proxy feeds: %w", err)
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > p.cfg.ValidateSample {
		candidates = candidates[:p.cfg.ValidateSample]
	}

	p.validate(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	added := 0
	for i := range candidates {
		c := &candidates[i]
		if c.SuccessCount == 0 || !c.HealthyWithin(p.cfg.LatencyCeiling) {
			p.blacklist[c.Addr()] = true
			continue
		}
		if len(p.proxies) >= p.cfg.MaxSize {
			continue
		}
		p.proxies[c.URL()] = c
		added++
	}
	p.lastRefresh = time.Now()
	size := len(p.proxies)
	p.mu.Unlock()

	p.log.Info("proxy pool refreshed",
		zap.Int("validated", len(candidates)),
		zap.Int("added", added),
		zap.Int("size", size))
	return nil
}

// validate probes every proxy in ps with bounded parallelism, updating the
// counters in place. ps must not be shared with readers yet.
func (p *Pool) validate(ctx context.Context, ps []Proxy) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ValidateParallel)
	for i := range ps {
		g.Go(func() error {
			rt, err := p.probe(gctx, ps[i])
			ps[i].LastChecked = time.Now()
			if err != nil {
				ps[i].FailCount++
				return nil
			}
			ps[i].SuccessCount++
			ps[i].ResponseTime = rt
			return nil
		})
	}
	_ = g.Wait()
}

// probe makes one GET to ProbeURL through px and returns the elapsed time.
func (p *Pool) probe(ctx context.Context, px Proxy) (time.Duration, error) {
	proxyURL, err := url.Parse(px.URL())
	if err != nil {
		return 0, err
	}
	tr := &http.Transport{
		Proxy:             http.ProxyURL(proxyURL),
		DisableKeepAlives: true,
	}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr, Timeout: p.cfg.ValidationTimeout}

	start := time.Now()
	if _, err := get(ctx, hc, p.cfg.ProbeURL); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func get(ctx context.Context, hc *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", rawURL, res.StatusCode)
	}
	return io.ReadAll(io.LimitReader(res.Body, 8<<20))
}

// HealthCheck re-probes every pooled proxy. Each failed check counts as a
// failure, so three in a row evict the proxy.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	snapshot := make([]Proxy, 0, len(p.proxies))
	for _, px := range p.proxies {
		snapshot = append(snapshot, *px)
	}
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	type result struct {
		rt  time.Duration
		err error
	}
	results := make([]result, len(snapshot))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ValidateParallel)
	for i := range snapshot {
		g.Go(func() error {
			rt, err := p.probe(gctx, snapshot[i])
			results[i] = result{rt: rt, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for i, s := range snapshot {
		px, ok := p.proxies[s.URL()]
		if !ok {
			continue
		}
		px.LastChecked = time.Now()
		if results[i].err != nil {
			px.FailCount++
		} else {
			px.SuccessCount++
			px.FailCount = max(0, px.FailCount-1)
			px.ResponseTime = results[i].rt
		}
		if !px.HealthyWithin(p.cfg.LatencyCeiling) {
			p.evictLocked(px)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Info("proxy health check evicted proxies", zap.Int("evicted", evicted), zap.Int("size", len(p.proxies)))
	}
	return nil
}

func (p *Pool) evictLocked(px *Proxy) {
	delete(p.proxies, px.URL())
	p.blacklist[px.Addr()] = true
}

// rankedLocked returns healthy proxies by score, best first.
func (p *Pool) rankedLocked() []*Proxy {
	out := make([]*Proxy, 0, len(p.proxies))
	for _, px := range p.proxies {
		if px.HealthyWithin(p.cfg.LatencyCeiling) {
			out = append(out, px)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].URL() < out[j].URL()
	})
	return out
}

// GetProxy returns a random pick among the five best healthy proxies. The
// pool is filled on first use if Start was never called.
func (p *Pool) GetProxy(ctx context.Context) (string, bool) {
	if err := p.ensureInit(ctx); err != nil {
		p.log.Warn("proxy pool init failed", zap.Error(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ranked := p.rankedLocked()
	if len(ranked) == 0 {
		p.log.Warn("no healthy proxies available")
		return "", false
	}
	top := ranked[:min(topK, len(ranked))]
	return top[p.pick(len(top))].URL(), true
}

// GetProxies returns up to n distinct healthy proxies, best first.
func (p *Pool) GetProxies(ctx context.Context, n int) []string {
	if err := p.ensureInit(ctx); err != nil {
		p.log.Warn("proxy pool init failed", zap.Error(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ranked := p.rankedLocked()
	out := make([]string, 0, min(n, len(ranked)))
	for _, px := range ranked[:min(n, len(ranked))] {
		out = append(out, px.URL())
	}
	return out
}

func (p *Pool) ReportSuccess(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if px, ok := p.proxies[proxyURL]; ok {
		px.SuccessCount++
		px.FailCount = max(0, px.FailCount-1)
	}
}

func (p *Pool) ReportFailure(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	px, ok := p.proxies[proxyURL]
	if !ok {
		return
	}
	px.FailCount++
	if !px.HealthyWithin(p.cfg.LatencyCeiling) {
		p.evictLocked(px)
		p.log.Debug("removed unhealthy proxy", zap.String("proxy", proxyURL))
	}
}

// ReportLatency records an observed response time; a proxy slower than the
// ceiling is evicted.
func (p *Pool) ReportLatency(proxyURL string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	px, ok := p.proxies[proxyURL]
	if !ok {
		return
	}
	px.ResponseTime = d
	if !px.HealthyWithin(p.cfg.LatencyCeiling) {
		p.evictLocked(px)
		p.log.Debug("removed slow proxy", zap.String("proxy", proxyURL), zap.Duration("latency", d))
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:        len(p.proxies),
		Healthy:     len(p.rankedLocked()),
		Blacklisted: len(p.blacklist),
		LastRefresh: p.lastRefresh,
	}
}

// Close stops the background refresh.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.stop != nil {
		p.stop()
	}
	return nil
}
