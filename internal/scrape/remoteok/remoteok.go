// Package remoteok reads the RemoteOK JSON feed, optionally through a pooled
// proxy.
package remoteok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/util"
)

const (
	Name           = "remoteok"
	DefaultBaseURL = "https://remoteok.com"
)

type Config struct {
	BaseURL  string
	UseProxy bool
}

type Source struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	proxies *proxy.Pool
	log     *zap.Logger
	now     func() time.Time
}

func New(cfg Config, deps scrape.Deps) (*Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	s := &Source{
		cfg:     cfg,
		hc:      deps.Client(),
		limiter: deps.Limiter,
		log:     deps.Logger().Named(Name),
		now:     time.Now,
	}
	if cfg.UseProxy {
		s.proxies = deps.Proxies
	}
	return s, nil
}

func (s *Source) Name() string    { return Name }
func (s *Source) BaseURL() string { return s.cfg.BaseURL }

type listing struct {
	Legal       string   `json:"legal"`
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	URL         string   `json:"url"`
	Position    string   `json:"position"`
	Company     string   `json:"company"`
	CompanyLogo string   `json:"company_logo"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Tags        []string `json:"tags"`
	Date        string   `json:"date"`
	SalaryMin   int      `json:"salary_min"`
	SalaryMax   int      `json:"salary_max"`
}

// Search fetches the whole feed in one request and filters it locally.
func (s *Source) Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		listings, err := s.fetch(ctx)
		if err != nil {
			yield(domain.Job{}, err)
			return
		}

		for _, l := range listings {
			if l.Legal != "" || strings.TrimSpace(l.Position) == "" {
				continue
			}
			// company and tags stand in for the description when matching
			blob := l.Company + " " + strings.Join(l.Tags, " ")
			if !util.MatchesKeywords(l.Position, blob, q.Keywords) {
				continue
			}
			j := s.toJob(l)
			if !util.MatchesLocation(j.Location, j.LocationType, q.Location) {
				continue
			}
			if !yield(j, nil) {
				return
			}
		}
	}
}

func (s *Source) fetch(ctx context.Context) ([]listing, error) {
	apiURL := s.cfg.BaseURL + "/api"
	hc, proxyURL, done := s.client(ctx)
	defer done()

	start := time.Now()
	body, err := scrape.Get(ctx, hc, s.limiter, Name, apiURL, http.Header{"Accept": {"application/json"}})
	if proxyURL != "" {
		s.report(proxyURL, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	var out []listing
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "decode feed", Cause: err}
	}
	return out, nil
}

// client returns an HTTP client egressing through a pooled proxy when one is
// available, or the shared client otherwise. The proxied transport is single
// use; done closes its connections.
func (s *Source) client(ctx context.Context) (*http.Client, string, func()) {
	direct := func() {}
	if s.proxies == nil {
		return s.hc, "", direct
	}
	proxyURL, ok := s.proxies.GetProxy(ctx)
	if !ok {
		s.log.Debug("no healthy proxy, going direct")
		return s.hc, "", direct
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return s.hc, "", direct
	}
	tr := &http.Transport{
		Proxy:             http.ProxyURL(u),
		DisableKeepAlives: true,
	}
	hc := &http.Client{Timeout: s.hc.Timeout, Transport: tr}
	return hc, proxyURL, tr.CloseIdleConnections
}

// report feeds the outcome back to the proxy pool. Status errors from the
// site itself say nothing about the proxy.
func (s *Source) report(proxyURL string, d time.Duration, err error) {
	var se *scrape.SourceError
	switch {
	case err == nil:
		s.proxies.ReportSuccess(proxyURL)
		s.proxies.ReportLatency(proxyURL, d)
	case errors.As(err, &se) && se.Status != 0:
	default:
		s.log.Debug("proxy request failed", zap.String("proxy", proxyURL), zap.Error(err))
		s.proxies.ReportFailure(proxyURL)
	}
}

func (s *Source) toJob(l listing) domain.Job {
	jobURL := l.URL
	if jobURL == "" {
		jobURL = fmt.Sprintf("%s/remote-jobs/%s", s.cfg.BaseURL, l.Slug)
	}
	company := util.CleanText(l.Company)
	if company == "" {
		company = "Unknown"
	}
	desc := util.HTMLText(l.Description)
	if desc == "" {
		desc = l.Position
	}
	loc := util.NormalizeLocation(l.Location)
	if loc == "" {
		loc = "Remote"
	}

	j := domain.Job{
		URL:          util.CanonicalizeURL(jobURL),
		Title:        util.CleanText(l.Position),
		CompanyName:  company,
		Description:  desc,
		Source:       Name,
		Location:     loc,
		LocationType: domain.LocationRemote,
		CompanyLogo:  l.CompanyLogo,
		Requirements: l.Tags,
		ScrapedAt:    s.now(),
		RawData:      map[string]any{"id": l.ID, "slug": l.Slug},
	}

	if l.Date != "" {
		if t, err := time.Parse(time.RFC3339, l.Date); err == nil {
			t = t.UTC()
			j.PostedDate = &t
		}
	}

	j.SalaryMin, j.SalaryMax = l.SalaryMin, l.SalaryMax
	switch {
	case l.SalaryMin > 0 && l.SalaryMax > 0:
		j.SalaryText = fmt.Sprintf("$%d - $%d", l.SalaryMin, l.SalaryMax)
		j.SalaryCurrency = "USD"
	case l.SalaryMin > 0:
		j.SalaryText = fmt.Sprintf("$%d+", l.SalaryMin)
		j.SalaryCurrency = "USD"
	}
	return j
}

// FetchDetails has nothing to add; the feed already carries full postings.
func (s *Source) FetchDetails(context.Context, string) (*domain.Job, error) {
	return nil, nil
}
