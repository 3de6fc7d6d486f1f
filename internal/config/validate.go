package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the struct-level rules and returns every violation in one
// error.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, describe(fe))
	}
	return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL (got %v)", field, fe.Value())
	}
	return fmt.Sprintf("%s failed %q", field, fe.Tag())
}

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg along with the
// cross-field problems the struct tags cannot express.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string, lower bool) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			if lower {
				x = key
			}
			ys = append(ys, x)
		}
		return ys
	}

	out.Sources.Enabled = trimList(out.Sources.Enabled, true)
	out.Proxy.Feeds = trimList(out.Proxy.Feeds, false)
	out.Server.CORSOrigins = trimList(out.Server.CORSOrigins, false)
	out.Cache.Backend = strings.ToLower(strings.TrimSpace(out.Cache.Backend))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	if len(out.Orchestrator.Priorities) > 0 {
		prio := make(map[string]int, len(out.Orchestrator.Priorities))
		for k, v := range out.Orchestrator.Priorities {
			prio[strings.ToLower(strings.TrimSpace(k))] = v
		}
		out.Orchestrator.Priorities = prio
	}

	// ---- cross-field rules ----

	if out.Proxy.MaxSize < out.Proxy.MinSize {
		res.addErr("proxy.max_size (%d) must be >= proxy.min_size (%d)", out.Proxy.MaxSize, out.Proxy.MinSize)
	}
	if out.Proxy.ValidateSample > out.Proxy.MaxCandidates {
		res.addWarn("proxy.validate_sample (%d) exceeds proxy.max_candidates (%d); only %d will be probed.",
			out.Proxy.ValidateSample, out.Proxy.MaxCandidates, out.Proxy.MaxCandidates)
	}
	if out.Proxy.Enabled && len(out.Proxy.Feeds) == 0 {
		res.addErr("proxy.feeds is empty while proxy.enabled=true")
	}

	if out.Orchestrator.MaxParallel > 20 {
		res.addWarn("orchestrator.max_parallel is high (%d) and may trigger rate limits.", out.Orchestrator.MaxParallel)
	}
	if out.Orchestrator.PerSourceTimeout > 0 && out.Orchestrator.PerSourceTimeout < 5*time.Second {
		res.addWarn("orchestrator.per_source_timeout is very low (%s); slow boards will time out.", out.Orchestrator.PerSourceTimeout)
	}
	if out.Browser.Enabled && out.Browser.IdleTimeout > 0 && out.Browser.IdleTimeout < out.Browser.SweepInterval {
		res.addWarn("browser.idle_timeout (%s) is shorter than browser.sweep_interval (%s); teardown will lag.",
			out.Browser.IdleTimeout, out.Browser.SweepInterval)
	}
	if out.Cache.Backend == "memory" && out.Cache.TTL > 24*time.Hour {
		res.addWarn("cache.ttl is longer than a day on the memory backend; entries are lost on restart anyway.")
	}

	boards := map[string][]Company{
		"lever":           out.Sources.Lever.Companies,
		"greenhouse":      out.Sources.Greenhouse.Companies,
		"smartrecruiters": out.Sources.SmartRecruiters.Companies,
	}
	for _, name := range []string{"lever", "greenhouse", "smartrecruiters"} {
		for _, c := range boards[name] {
			if strings.ContainsAny(c.Slug, "/ ") {
				res.addErr("sources.%s.companies: slug %q must not contain '/' or spaces", name, c.Slug)
			}
		}
	}
	for _, c := range out.Sources.Workday.Companies {
		if u, err := url.Parse(c.Slug); err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
			res.addErr("sources.workday.companies: slug %q must be a portal url like https://acme.wd5.myworkdayjobs.com/External", c.Slug)
		}
	}

	return out, res
}
