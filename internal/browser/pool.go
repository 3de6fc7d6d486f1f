// Package browser owns the headless Chrome process shared by browser-backed
// sources and hands out isolated, fingerprinted tabs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"jobscout-engine/internal/scheduler"
)

var (
	ErrPoolClosed     = errors.New("browser: pool closed")
	ErrChromeNotFound = errors.New("browser: no chrome or chromium executable found")
)

type Config struct {
	ExecPath      string
	MaxContexts   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	NavTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxContexts <= 0 {
		c.MaxContexts = 3
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	return c
}

// process is one running Chrome. ctx is the chromedp browser context tabs
// are derived from.
type process struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type Stats struct {
	Launched     bool      `json:"launched"`
	Open         int       `json:"open_contexts"`
	MaxContexts  int       `json:"max_contexts"`
	Acquisitions int64     `json:"acquisitions"`
	Launches     int64     `json:"launches"`
	LastUsed     time.Time `json:"last_used,omitempty"`
}

type Pool struct {
	cfg Config
	log *zap.Logger
	sem chan struct{}

	mu           sync.Mutex
	proc         *process
	open         int
	lastUsed     time.Time
	acquisitions int64
	launches     int64
	closed       bool
	stopSweep    context.CancelFunc
	// launching is closed when the shared process launch in flight ends.
	launching chan struct{}

	now     func() time.Time
	launch  func(ctx context.Context, proxy string) (*process, error)
	newTab  func(p *process) (context.Context, context.CancelFunc)
	prepare func(ctx context.Context, prof Profile) error
}

func NewPool(cfg Config, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		log:     log.Named("browser"),
		sem:     make(chan struct{}, cfg.MaxContexts),
		now:     time.Now,
		newTab:  newTab,
		prepare: applyProfile,
	}
	p.launch = p.launchChrome
	return p
}

// Start runs the idle sweep until ctx is done or the pool is closed.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.closed || p.stopSweep != nil {
		p.mu.Unlock()
		cancel()
		return
	}
	p.stopSweep = cancel
	p.mu.Unlock()

	go scheduler.Every(ctx, p.cfg.SweepInterval, "browser-idle-sweep", p.log, func(context.Context) error {
		p.Sweep()
		return nil
	})
}

// AcquireContext opens a new isolated tab. A nil profile gets a random one.
// Callers must defer Release; the tab is also released when ctx is done.
func (p *Pool) AcquireContext(ctx context.Context, prof *Profile) (*Context, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var profile Profile
	if prof != nil {
		profile = *prof
	}
	profile = profile.withDefaults()

	proc, dedicated, err := p.processFor(ctx, profile)
	if err != nil {
		<-p.sem
		return nil, err
	}

	tabCtx, tabCancel := p.newTab(proc)
	c := &Context{
		ctx:        tabCtx,
		cancel:     tabCancel,
		Profile:    profile,
		pool:       p,
		navTimeout: p.cfg.NavTimeout,
	}
	if dedicated {
		c.dedicated = proc
	}

	if err := p.prepare(tabCtx, profile); err != nil {
		c.Release()
		return nil, fmt.Errorf("prepare browser context: %w", err)
	}

	c.mu.Lock()
	c.stop = context.AfterFunc(ctx, c.Release)
	c.mu.Unlock()
	p.log.Debug("context acquired",
		zap.String("user_agent", profile.UserAgent),
		zap.String("timezone", profile.Timezone),
		zap.Bool("proxied", dedicated))
	return c, nil
}

// processFor returns the shared process, launching it if needed, or a fresh
// dedicated process for proxied profiles. It counts the context as open.
// Chrome starts outside p.mu so releases and stats never wait on a launch,
// and only one caller launches the shared process at a time.
func (p *Pool) processFor(ctx context.Context, profile Profile) (*process, bool, error) {
	if profile.Proxy != "" {
		dp, err := p.launch(ctx, profile.Proxy)
		if err != nil {
			return nil, false, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			dp.cancel()
			return nil, false, ErrPoolClosed
		}
		p.launches++
		p.trackLocked()
		return dp, true, nil
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, false, ErrPoolClosed
		}
		if p.proc != nil {
			proc := p.proc
			p.trackLocked()
			p.mu.Unlock()
			return proc, false, nil
		}
		if wait := p.launching; wait != nil {
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
		}
		done := make(chan struct{})
		p.launching = done
		p.mu.Unlock()

		sp, err := p.launch(ctx, "")

		p.mu.Lock()
		p.launching = nil
		close(done)
		if err != nil {
			p.mu.Unlock()
			return nil, false, err
		}
		if p.closed {
			p.mu.Unlock()
			sp.cancel()
			return nil, false, ErrPoolClosed
		}
		p.proc = sp
		p.launches++
		p.trackLocked()
		p.mu.Unlock()
		p.log.Info("chrome launched")
		return sp, false, nil
	}
}

func (p *Pool) trackLocked() {
	p.open++
	p.acquisitions++
	p.lastUsed = p.now()
}

func (p *Pool) release() {
	p.mu.Lock()
	p.open--
	p.lastUsed = p.now()
	p.mu.Unlock()
	<-p.sem
}

// Sweep tears the shared process down when nothing is open and it has been
// idle for longer than IdleTimeout. It reports whether it did.
func (p *Pool) Sweep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc == nil || p.open > 0 || p.now().Sub(p.lastUsed) <= p.cfg.IdleTimeout {
		return false
	}
	p.proc.cancel()
	p.proc = nil
	p.log.Info("chrome closed after idle", zap.Duration("idle_timeout", p.cfg.IdleTimeout))
	return true
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Launched:     p.proc != nil,
		Open:         p.open,
		MaxContexts:  p.cfg.MaxContexts,
		Acquisitions: p.acquisitions,
		Launches:     p.launches,
		LastUsed:     p.lastUsed,
	}
}

// Close stops the sweep and the shared process. Further acquisitions fail
// with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.stopSweep != nil {
		p.stopSweep()
	}
	if p.proc != nil {
		p.proc.cancel()
		p.proc = nil
	}
	return nil
}

// launchChrome starts a Chrome process. The process outlives ctx, which only
// bounds the startup.
func (p *Pool) launchChrome(ctx context.Context, proxy string) (*process, error) {
	execPath, err := findChrome(p.cfg.ExecPath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// An empty Run starts the browser.
	abort := context.AfterFunc(ctx, cancel)
	err = chromedp.Run(browserCtx)
	if !abort() {
		return nil, fmt.Errorf("launch chrome %s: %w", execPath, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("launch chrome %s: %w", execPath, err)
	}
	return &process{ctx: browserCtx, cancel: cancel}, nil
}

func newTab(p *process) (context.Context, context.CancelFunc) {
	return chromedp.NewContext(p.ctx, chromedp.WithNewBrowserContext())
}

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

const macChrome = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"

// findChrome resolves the configured executable, or the first known Chrome
// on PATH.
func findChrome(explicit string) (string, error) {
	if explicit != "" {
		if path, err := exec.LookPath(explicit); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrChromeNotFound, explicit)
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if _, err := os.Stat(macChrome); err == nil {
		return macChrome, nil
	}
	return "", ErrChromeNotFound
}
