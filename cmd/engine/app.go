package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/cache"
	"jobscout-engine/internal/config"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/logging"
	"jobscout-engine/internal/orchestrator"
	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scheduler"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/sources"
	"jobscout-engine/internal/scrape/util"
)

const cacheSweepInterval = 10 * time.Minute

// app owns every long-lived resource. Pools are built once here and handed
// to the orchestrator; nothing is global.
type app struct {
	cfg config.Config
	log *zap.Logger

	limiter *util.HostLimiter
	http    *http.Client
	browser *browser.Pool
	proxies *proxy.Pool
	backend cache.Backend
	cache   *cache.Cache
	reg     *scrape.Registry
	orch    *orchestrator.Orchestrator
	hub     *events.Hub
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("JOBSCOUT_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.dev {
		cfg.Log.Development = true
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	if _, v := config.NormalizeAndValidate(cfg); len(v.Warnings) > 0 {
		for _, w := range v.Warnings {
			log.Warn("config warning", zap.String("warning", w))
		}
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		limiter: util.NewHostLimiter(cfg.Sources.RatePerSec, cfg.Sources.Burst),
		http:    &http.Client{Timeout: 30 * time.Second},
		hub:     events.NewHub(),
	}
	for host, rps := range cfg.Sources.HostRates {
		a.limiter.Override(host, rps)
	}

	if cfg.Browser.Enabled {
		a.browser = browser.NewPool(browser.Config{
			ExecPath:      cfg.Browser.ExecPath,
			MaxContexts:   cfg.Browser.MaxContexts,
			IdleTimeout:   cfg.Browser.IdleTimeout,
			SweepInterval: cfg.Browser.SweepInterval,
			NavTimeout:    cfg.Browser.NavTimeout,
		}, log)
	}
	if cfg.Proxy.Enabled {
		a.proxies = proxy.NewPool(proxy.Config{
			Feeds:             cfg.Proxy.Feeds,
			ProbeURL:          cfg.Proxy.ProbeURL,
			MinSize:           cfg.Proxy.MinSize,
			MaxSize:           cfg.Proxy.MaxSize,
			RefreshInterval:   cfg.Proxy.RefreshInterval,
			ValidationTimeout: cfg.Proxy.ValidationTimeout,
			ValidateSample:    cfg.Proxy.ValidateSample,
			ValidateParallel:  cfg.Proxy.ValidateParallel,
			MaxCandidates:     cfg.Proxy.MaxCandidates,
			LatencyCeiling:    cfg.Proxy.LatencyCeiling,
		}, a.http, a.limiter, log)
	}

	a.backend, err = cache.Open(ctx, cache.Config{
		Backend:     cfg.Cache.Backend,
		SQLitePath:  cfg.Cache.SQLitePath,
		RedisURL:    cfg.Cache.RedisURL,
		PostgresURL: cfg.Cache.PostgresURL,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.cache = cache.New(a.backend, cfg.Cache.TTL, log)

	a.reg = scrape.NewRegistry()
	if err := sources.RegisterAll(a.reg, cfg.Sources); err != nil {
		a.close()
		return nil, err
	}

	a.orch = orchestrator.New(orchestrator.Config{
		MaxParallel:      cfg.Orchestrator.MaxParallel,
		PerSourceTimeout: cfg.Orchestrator.PerSourceTimeout,
		MaxRetries:       cfg.Orchestrator.MaxRetries,
		BaseBackoff:      cfg.Orchestrator.BaseBackoff,
		MaxJobsPerSource: cfg.Orchestrator.MaxJobsPerSource,
		Priorities:       cfg.Orchestrator.Priorities,
	}, a.reg, a.deps(), log,
		orchestrator.WithCache(a.cache),
		orchestrator.WithInstrument(progressHooks(a.hub)),
	)

	log.Info("engine ready",
		zap.Strings("sources", a.reg.Names()),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("browser", a.browser != nil),
		zap.Bool("proxies", a.proxies != nil))
	return a, nil
}

func (a *app) deps() scrape.Deps {
	return scrape.Deps{
		Browser: a.browser,
		Proxies: a.proxies,
		Limiter: a.limiter,
		HTTP:    a.http,
		Log:     a.log,
	}
}

// start launches background maintenance: the browser idle sweep, proxy
// refresh and expired cache cleanup. All of it stops with ctx.
func (a *app) start(ctx context.Context) {
	if a.browser != nil {
		a.browser.Start(ctx)
	}
	if a.proxies != nil {
		a.proxies.Start(ctx)
	}
	go scheduler.Every(ctx, cacheSweepInterval, "cache-sweep", a.log, a.sweepCache)
}

func (a *app) sweepCache(ctx context.Context) error {
	switch b := a.backend.(type) {
	case *cache.Memory:
		if n := b.Sweep(); n > 0 {
			a.log.Debug("cache sweep", zap.Int("removed", n))
		}
	case *cache.SQLite:
		n, err := b.Purge(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			a.log.Debug("cache sweep", zap.Int64("removed", n))
		}
	}
	return nil
}

func (a *app) close() {
	var errs []error
	if a.proxies != nil {
		errs = append(errs, a.proxies.Close())
	}
	if a.browser != nil {
		errs = append(errs, a.browser.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	} else if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown", zap.Error(err))
	}
	_ = a.log.Sync()
}
