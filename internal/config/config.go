// engine/internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Company struct {
	Slug string `yaml:"slug" validate:"required"`
	Name string `yaml:"name"`
}

type OrchestratorConfig struct {
	MaxParallel      int            `yaml:"max_parallel" validate:"min=1"`
	PerSourceTimeout time.Duration  `yaml:"per_source_timeout" validate:"required"`
	MaxRetries       int            `yaml:"max_retries" validate:"min=1"`
	BaseBackoff      time.Duration  `yaml:"base_backoff" validate:"required"`
	MaxJobsPerSource int            `yaml:"max_jobs_per_source" validate:"min=1"`
	Priorities       map[string]int `yaml:"priorities"`
}

type BrowserConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ExecPath      string        `yaml:"exec_path"`
	MaxContexts   int           `yaml:"max_contexts" validate:"min=1"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" validate:"required"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"required"`
	NavTimeout    time.Duration `yaml:"nav_timeout" validate:"required"`
}

type ProxyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Feeds             []string      `yaml:"feeds" validate:"required_if=Enabled true,dive,url"`
	ProbeURL          string        `yaml:"probe_url" validate:"required,url"`
	MinSize           int           `yaml:"min_size" validate:"min=0"`
	MaxSize           int           `yaml:"max_size" validate:"min=1"`
	RefreshInterval   time.Duration `yaml:"refresh_interval" validate:"required"`
	ValidationTimeout time.Duration `yaml:"validation_timeout" validate:"required"`
	ValidateSample    int           `yaml:"validate_sample" validate:"min=1"`
	ValidateParallel  int           `yaml:"validate_parallel" validate:"min=1"`
	MaxCandidates     int           `yaml:"max_candidates" validate:"min=1"`
	LatencyCeiling    time.Duration `yaml:"latency_ceiling" validate:"required"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=memory sqlite redis postgres"`
	TTL         time.Duration `yaml:"ttl" validate:"required"`
	SQLitePath  string        `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	RedisURL    string        `yaml:"redis_url" validate:"required_if=Backend redis"`
	PostgresURL string        `yaml:"postgres_url" validate:"required_if=Backend postgres"`
}

type SourcesConfig struct {
	// Enabled lists registered source names; empty means all of them.
	Enabled       []string `yaml:"enabled"`
	CompaniesFile string   `yaml:"companies_file"`
	RatePerSec    float64  `yaml:"rate_per_sec" validate:"gt=0"`
	Burst         int      `yaml:"burst" validate:"min=1"`
	MaxPages      int      `yaml:"max_pages" validate:"min=1"`

	// HostRates overrides RatePerSec for individual API hosts.
	HostRates map[string]float64 `yaml:"host_rates" validate:"dive,gt=0"`

	Lever struct {
		Companies []Company `yaml:"companies" validate:"dive"`
	} `yaml:"lever"`
	Greenhouse struct {
		Companies []Company `yaml:"companies" validate:"dive"`
	} `yaml:"greenhouse"`
	SmartRecruiters struct {
		Companies []Company `yaml:"companies" validate:"dive"`
	} `yaml:"smartrecruiters"`
	// Workday slugs are full portal URLs.
	Workday struct {
		Companies []Company `yaml:"companies" validate:"dive"`
	} `yaml:"workday"`
	RemoteOK struct {
		BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
		UseProxy bool   `yaml:"use_proxy"`
	} `yaml:"remoteok"`
	BuiltIn struct {
		BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
		UseProxy bool   `yaml:"use_proxy"`
	} `yaml:"builtin"`
}

type Config struct {
	Log struct {
		Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Server struct {
		Addr        string   `yaml:"addr" validate:"required,hostname_port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Browser      BrowserConfig      `yaml:"browser"`
	Proxy        ProxyConfig        `yaml:"proxy"`
	Cache        CacheConfig        `yaml:"cache"`
	Sources      SourcesConfig      `yaml:"sources"`
}

var DefaultProxyFeeds = []string{
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
	"https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-http.txt",
}

func Default() Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Server.Addr = "127.0.0.1:38471"

	cfg.Orchestrator = OrchestratorConfig{
		MaxParallel:      5,
		PerSourceTimeout: 60 * time.Second,
		MaxRetries:       3,
		BaseBackoff:      time.Second,
		MaxJobsPerSource: 50,
	}

	cfg.Browser = BrowserConfig{
		Enabled:       true,
		MaxContexts:   3,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: time.Minute,
		NavTimeout:    30 * time.Second,
	}

	cfg.Proxy = ProxyConfig{
		Enabled:           false,
		Feeds:             append([]string(nil), DefaultProxyFeeds...),
		ProbeURL:          "https://httpbin.org/ip",
		MinSize:           10,
		MaxSize:           50,
		RefreshInterval:   time.Hour,
		ValidationTimeout: 10 * time.Second,
		ValidateSample:    50,
		ValidateParallel:  10,
		MaxCandidates:     200,
		LatencyCeiling:    10 * time.Second,
	}

	cfg.Cache = CacheConfig{
		Backend:    "memory",
		TTL:        6 * time.Hour,
		SQLitePath: "jobscout-cache.db",
	}

	cfg.Sources.RatePerSec = 1.0
	cfg.Sources.Burst = 2
	cfg.Sources.MaxPages = 5
	return cfg
}

// Load reads path on top of Default, then applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if cfg.Sources.CompaniesFile != "" {
		if err := OverlayCompanies(&cfg, cfg.Sources.CompaniesFile); err != nil {
			return cfg, err
		}
	}

	cfg, res := NormalizeAndValidate(cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	if !res.OK() {
		return cfg, errors.New("config validation failed:\n- " + strings.Join(res.Errors, "\n- "))
	}
	return cfg, nil
}
