package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with any JOBSCOUT_* variables (plus REDIS_URL and
// DATABASE_URL) that lookup reports as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a duration", key, v))
			return
		}
		*dst = d
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	str("JOBSCOUT_LOG_LEVEL", &cfg.Log.Level)
	str("JOBSCOUT_ADDR", &cfg.Server.Addr)

	num("JOBSCOUT_MAX_PARALLEL", &cfg.Orchestrator.MaxParallel)
	dur("JOBSCOUT_SOURCE_TIMEOUT", &cfg.Orchestrator.PerSourceTimeout)
	num("JOBSCOUT_MAX_RETRIES", &cfg.Orchestrator.MaxRetries)

	flag("JOBSCOUT_BROWSER_ENABLED", &cfg.Browser.Enabled)
	dur("JOBSCOUT_BROWSER_IDLE_TIMEOUT", &cfg.Browser.IdleTimeout)
	num("JOBSCOUT_BROWSER_MAX_CONTEXTS", &cfg.Browser.MaxContexts)

	flag("JOBSCOUT_PROXY_ENABLED", &cfg.Proxy.Enabled)
	num("JOBSCOUT_PROXY_MIN_SIZE", &cfg.Proxy.MinSize)
	num("JOBSCOUT_PROXY_MAX_SIZE", &cfg.Proxy.MaxSize)
	dur("JOBSCOUT_PROXY_REFRESH_INTERVAL", &cfg.Proxy.RefreshInterval)

	dur("JOBSCOUT_CACHE_TTL", &cfg.Cache.TTL)
	str("JOBSCOUT_CACHE_BACKEND", &cfg.Cache.Backend)
	str("REDIS_URL", &cfg.Cache.RedisURL)
	str("DATABASE_URL", &cfg.Cache.PostgresURL)

	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.Split(v, ",")
		}
	}
	list("JOBSCOUT_SOURCES", &cfg.Sources.Enabled)
	list("JOBSCOUT_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
