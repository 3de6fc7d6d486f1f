// Package workday queries Workday candidate portals (*.myworkdayjobs.com)
// through the JSON "cxs" endpoints their own front end calls.
package workday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/util"
)

const (
	Name     = "workday"
	pageSize = 20 // the cxs endpoint rejects larger pages
	csrfName = "CALYPSO_CSRF_TOKEN"
)

// ErrBlocked is returned for portals fronted by a Cloudflare challenge.
var ErrBlocked = fmt.Errorf("workday portal blocked by cloudflare: %w", scrape.ErrPermanent)

type Company struct {
	// BoardURL is the public portal, e.g.
	// https://acme.wd5.myworkdayjobs.com/en-US/External.
	BoardURL string
	Name     string
}

type Config struct {
	Companies []Company
	MaxPages  int // per company
}

type Source struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	blocked map[string]bool
}

func New(cfg Config, deps scrape.Deps) (*Source, error) {
	if len(cfg.Companies) == 0 {
		return nil, fmt.Errorf("%w: workday has no boards configured", scrape.ErrUnsupported)
	}
	for _, co := range cfg.Companies {
		if _, err := parseBoardURL(co.BoardURL); err != nil {
			return nil, scrape.Permanent(fmt.Errorf("workday board %q: %w", co.BoardURL, err))
		}
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Source{
		cfg:     cfg,
		hc:      deps.Client(),
		limiter: deps.Limiter,
		log:     deps.Logger().Named(Name),
		now:     time.Now,
		blocked: map[string]bool{},
	}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) BaseURL() string {
	b, _ := parseBoardURL(s.cfg.Companies[0].BoardURL)
	return b.origin()
}

type board struct {
	Scheme string
	Host   string
	Tenant string
	Site   string
	Locale string
}

func parseBoardURL(raw string) (board, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return board{}, errors.New("empty board url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return board{}, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return board{}, fmt.Errorf("missing host in %q", raw)
	}
	tenant, _, ok := strings.Cut(u.Hostname(), ".")
	if !ok || tenant == "" {
		return board{}, fmt.Errorf("unexpected host %q", u.Host)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	locale := ""
	if len(segs) >= 2 && looksLikeLocale(segs[0]) {
		locale = normalizeLocale(segs[0])
		segs = segs[1:]
	}
	if len(segs) == 0 || segs[0] == "" {
		return board{}, fmt.Errorf("missing site in path %q", u.Path)
	}

	return board{
		Scheme: u.Scheme,
		Host:   u.Host,
		Tenant: tenant,
		Site:   segs[len(segs)-1],
		Locale: locale,
	}, nil
}

func looksLikeLocale(s string) bool {
	return len(s) == 5 && s[2] == '-' && isAlpha(s[:2]) && isAlpha(s[3:])
}

func normalizeLocale(s string) string {
	return strings.ToLower(s[:2]) + "-" + strings.ToUpper(s[3:])
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func (b board) origin() string { return b.Scheme + "://" + b.Host }

func (b board) portal() string {
	if b.Locale == "" {
		return b.origin() + "/" + b.Site
	}
	return b.origin() + "/" + b.Locale + "/" + b.Site
}

func (b board) api() string {
	return fmt.Sprintf("%s/wday/cxs/%s/%s", b.origin(), b.Tenant, b.Site)
}

// jobURL turns an externalPath ("/job/Austin-TX/Engineer_R123") into the
// public posting link.
func (b board) jobURL(externalPath string) string {
	p := strings.TrimSpace(externalPath)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return b.portal() + p
}

type searchRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type searchResponse struct {
	Total       int       `json:"total"`
	JobPostings []posting `json:"jobPostings"`
}

type posting struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	RemoteType    string   `json:"remoteType"`
	BulletFields  []string `json:"bulletFields"`
}

type detailResponse struct {
	JobPostingInfo struct {
		Title          string `json:"title"`
		JobDescription string `json:"jobDescription"` // html
		Location       string `json:"location"`
		TimeType       string `json:"timeType"`
		PostedOn       string `json:"postedOn"`
		StartDate      string `json:"startDate"`
		JobReqID       string `json:"jobReqId"`
		RemoteType     string `json:"remoteType"`
		ExternalURL    string `json:"externalUrl"`
	} `json:"jobPostingInfo"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
}

var errStopped = errors.New("consumer stopped")

// Search sends the keywords to each portal's own full-text search and
// filters the location locally. Failing portals are skipped; an error is
// yielded only when none could be read.
func (s *Source) Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		var lastErr error
		ok := 0

		for _, co := range s.cfg.Companies {
			if err := ctx.Err(); err != nil {
				yield(domain.Job{}, err)
				return
			}
			err := s.searchCompany(ctx, co, q, yield)
			if errors.Is(err, errStopped) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					yield(domain.Job{}, ctx.Err())
					return
				}
				s.log.Warn("board fetch failed", zap.String("board", co.BoardURL), zap.Error(err))
				lastErr = err
				continue
			}
			ok++
		}

		if ok == 0 && lastErr != nil {
			yield(domain.Job{}, lastErr)
		}
	}
}

// session is one cookie-carrying client per portal; some tenants insist on
// the CSRF cookie set by the portal page.
type session struct {
	hc   *http.Client
	csrf string
}

func (s *Source) newSession() *session {
	jar, _ := cookiejar.New(nil)
	return &session{hc: &http.Client{Transport: s.hc.Transport, Timeout: s.hc.Timeout, Jar: jar}}
}

func (s *Source) searchCompany(ctx context.Context, co Company, q domain.Query, yield func(domain.Job, error) bool) error {
	b, err := parseBoardURL(co.BoardURL)
	if err != nil {
		return scrape.Permanent(err)
	}
	if s.isBlocked(b.Host) {
		return ErrBlocked
	}

	sess := s.newSession()
	if err := s.bootstrap(ctx, sess, b); err != nil {
		if errors.Is(err, ErrBlocked) {
			return err
		}
		s.log.Debug("session bootstrap failed", zap.String("board", co.BoardURL), zap.Error(err))
	}

	total := -1
	for page := range s.cfg.MaxPages {
		offset := page * pageSize
		sr, err := s.fetchPage(ctx, sess, b, searchRequest{
			AppliedFacets: map[string]any{},
			Limit:         pageSize,
			Offset:        offset,
			SearchText:    strings.Join(q.Keywords, " "),
		})
		if err != nil {
			return err
		}
		// later pages report total 0
		if total < 0 {
			total = sr.Total
		}

		for _, p := range sr.JobPostings {
			j, ok := s.toJob(co, b, p)
			if !ok || !util.MatchesLocation(j.Location, j.LocationType, q.Location) {
				continue
			}
			s.hydrate(ctx, &j)
			if !yield(j, nil) {
				return errStopped
			}
		}

		if len(sr.JobPostings) < pageSize || offset+pageSize >= total {
			return nil
		}
	}
	return nil
}

func (s *Source) isBlocked(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[host]
}

func (s *Source) markBlocked(host string) {
	s.mu.Lock()
	s.blocked[host] = true
	s.mu.Unlock()
}

// bootstrap loads the portal page so the jar picks up the session and CSRF
// cookies.
func (s *Source) bootstrap(ctx context.Context, sess *session, b board) error {
	if err := s.limiter.WaitURL(ctx, b.portal()); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.portal(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", scrape.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", firstNonEmpty(b.Locale, "en-US"))

	res, err := sess.hc.Do(req)
	if err != nil {
		return &scrape.SourceError{Source: Name, Op: "bootstrap", Cause: err}
	}
	defer res.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	_, _ = io.Copy(io.Discard, res.Body)
	if looksLikeCloudflareBlock(res, string(preview)) {
		s.markBlocked(b.Host)
		return ErrBlocked
	}

	u, _ := url.Parse(b.portal())
	for _, c := range sess.hc.Jar.Cookies(u) {
		if c.Name == csrfName && c.Value != "" {
			sess.csrf = c.Value
			return nil
		}
	}
	return fmt.Errorf("no %s cookie (status %d)", csrfName, res.StatusCode)
}

func (s *Source) fetchPage(ctx context.Context, sess *session, b board, body searchRequest) (searchResponse, error) {
	var sr searchResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return sr, scrape.Permanent(err)
	}

	endpoint := b.api() + "/jobs"
	data, err := s.post(ctx, sess, b, endpoint, payload)
	if err != nil {
		return sr, err
	}
	if err := json.Unmarshal(data, &sr); err != nil {
		return sr, &scrape.SourceError{Source: Name, Op: "decode jobs", Cause: err}
	}
	return sr, nil
}

// post sends one cxs request. A client error without a CSRF token is retried
// once after a fresh bootstrap.
func (s *Source) post(ctx context.Context, sess *session, b board, endpoint string, payload []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.WaitURL(ctx, endpoint); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, scrape.Permanent(&scrape.SourceError{Source: Name, Op: "build request", Cause: err})
		}
		req.Header.Set("User-Agent", scrape.UserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", b.origin())
		req.Header.Set("Referer", b.portal())
		req.Header.Set("Accept-Language", firstNonEmpty(b.Locale, "en-US"))
		if sess.csrf != "" {
			req.Header.Set("X-Calypso-Csrf-Token", sess.csrf)
		}

		res, err := sess.hc.Do(req)
		if err != nil {
			return nil, &scrape.SourceError{Source: Name, Op: "post " + endpoint, Cause: err}
		}
		data, readErr := io.ReadAll(io.LimitReader(res.Body, 16<<20))
		res.Body.Close()

		if err := scrape.CheckStatus(Name, "post "+endpoint, res.StatusCode); err != nil {
			if attempt == 0 && sess.csrf == "" && scrape.IsPermanent(err) {
				if bootErr := s.bootstrap(ctx, sess, b); errors.Is(bootErr, ErrBlocked) {
					return nil, bootErr
				}
				if sess.csrf != "" {
					continue
				}
			}
			return nil, err
		}
		if readErr != nil {
			return nil, fmt.Errorf("%s: read body: %w", Name, readErr)
		}
		return data, nil
	}
}

func (s *Source) toJob(co Company, b board, p posting) (domain.Job, bool) {
	title := util.CleanText(p.Title)
	link := b.jobURL(p.ExternalPath)
	if title == "" || link == "" {
		return domain.Job{}, false
	}

	loc := util.NormalizeLocation(p.LocationsText)
	j := domain.Job{
		URL:          link,
		Title:        title,
		CompanyName:  firstNonEmpty(co.Name, b.Tenant),
		Description:  title,
		Source:       Name,
		Location:     loc,
		LocationType: util.ParseLocationType(p.RemoteType, loc, title),
		PostedDate:   util.ParsePostedDate(p.PostedOn, s.now()),
		ScrapedAt:    s.now(),
		RawData: map[string]any{
			"tenant": b.Tenant,
			"site":   b.Site,
		},
	}
	if len(p.BulletFields) > 0 {
		j.RawData["req_id"] = p.BulletFields[0]
	}
	return j, true
}

func (s *Source) hydrate(ctx context.Context, j *domain.Job) {
	d, err := s.FetchDetails(ctx, j.URL)
	if err != nil {
		s.log.Debug("hydrate failed", zap.String("url", j.URL), zap.Error(err))
		return
	}
	j.Description = d.Description
	j.Requirements = d.Requirements
	if d.JobType != "" {
		j.JobType = d.JobType
	}
	if d.PostedDate != nil {
		j.PostedDate = d.PostedDate
	}
	if d.LocationType != domain.LocationUnknown {
		j.LocationType = d.LocationType
	}
}

// FetchDetails reads one posting. jobURL is the public portal link a search
// produced.
func (s *Source) FetchDetails(ctx context.Context, jobURL string) (*domain.Job, error) {
	b, path, err := splitJobURL(jobURL)
	if err != nil {
		return nil, scrape.Permanent(&scrape.SourceError{Source: Name, Op: "parse job url", Cause: err})
	}

	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, b.api()+path, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	var dr detailResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "decode job", Cause: err}
	}

	info := dr.JobPostingInfo
	title := util.CleanText(info.Title)
	if title == "" {
		return nil, &scrape.SourceError{Source: Name, Op: "decode job", Cause: errors.New("posting has no title")}
	}

	company := dr.HiringOrganization.Name
	for _, co := range s.cfg.Companies {
		if cb, err := parseBoardURL(co.BoardURL); err == nil && cb.Host == b.Host && cb.Site == b.Site && co.Name != "" {
			company = co.Name
			break
		}
	}

	loc := util.NormalizeLocation(info.Location)
	desc := util.HTMLText(info.JobDescription)
	j := &domain.Job{
		URL:          firstNonEmpty(info.ExternalURL, jobURL),
		Title:        title,
		CompanyName:  firstNonEmpty(company, b.Tenant),
		Description:  firstNonEmpty(desc, title),
		Source:       Name,
		Location:     loc,
		LocationType: util.ParseLocationType(info.RemoteType, loc, title),
		JobType:      strings.ToLower(strings.TrimSpace(info.TimeType)),
		Requirements: util.ExtractRequirements(desc),
		ScrapedAt:    s.now(),
		RawData: map[string]any{
			"tenant": b.Tenant,
			"site":   b.Site,
			"req_id": info.JobReqID,
		},
	}
	j.PostedDate = util.ParsePostedDate(info.StartDate, s.now())
	if j.PostedDate == nil {
		j.PostedDate = util.ParsePostedDate(info.PostedOn, s.now())
	}
	return j, nil
}

// splitJobURL separates a posting link into its portal and the "/job/..."
// path the cxs API expects.
func splitJobURL(jobURL string) (board, string, error) {
	u, err := url.Parse(jobURL)
	if err != nil {
		return board{}, "", err
	}
	path := strings.Trim(u.Path, "/")
	head, tail, ok := strings.Cut(path, "/job/")
	if !ok || tail == "" {
		return board{}, "", fmt.Errorf("want /<site>/job/..., got %q", u.Path)
	}
	u.Path = "/" + head
	b, err := parseBoardURL(u.String())
	if err != nil {
		return board{}, "", err
	}
	return b, "/job/" + tail, nil
}

func looksLikeCloudflareBlock(res *http.Response, preview string) bool {
	server := strings.ToLower(res.Header.Get("Server"))
	low := strings.ToLower(preview)
	switch {
	case strings.Contains(low, "/cdn-cgi/challenge"),
		strings.Contains(low, "cloudflare") && strings.Contains(low, "checking your browser"),
		strings.Contains(low, "attention required") && strings.Contains(low, "cloudflare"):
		return true
	case res.StatusCode == http.StatusForbidden && strings.Contains(server, "cloudflare"):
		return true
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
