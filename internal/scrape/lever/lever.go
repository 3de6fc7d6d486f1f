// Package lever reads public postings from the Lever API for a configured
// list of companies.
package lever

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/util"
)

const (
	Name           = "lever"
	DefaultBaseURL = "https://api.lever.co"
	pageSize       = 100
)

type Company struct {
	Slug string // api.lever.co/v0/postings/<slug>
	Name string
}

type Config struct {
	Companies []Company
	BaseURL   string
	MaxPages  int // per company
}

type Source struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
	log     *zap.Logger
	now     func() time.Time
}

func New(cfg Config, deps scrape.Deps) (*Source, error) {
	if len(cfg.Companies) == 0 {
		return nil, fmt.Errorf("%w: lever has no companies configured", scrape.ErrUnsupported)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Source{
		cfg:     cfg,
		hc:      deps.Client(),
		limiter: deps.Limiter,
		log:     deps.Logger().Named(Name),
		now:     time.Now,
	}, nil
}

func (s *Source) Name() string    { return Name }
func (s *Source) BaseURL() string { return s.cfg.BaseURL }

type posting struct {
	ID            string `json:"id"`
	Text          string `json:"text"` // title
	HostedURL     string `json:"hostedUrl"`
	CreatedAt     int64  `json:"createdAt"` // ms epoch
	WorkplaceType string `json:"workplaceType"`
	Categories    struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	Description      string `json:"description"` // html
	DescriptionPlain string `json:"descriptionPlain"`
	Lists            []struct {
		Text    string `json:"text"`
		Content string `json:"content"` // <li> items
	} `json:"lists"`
	SalaryRange *struct {
		Min      int    `json:"min"`
		Max      int    `json:"max"`
		Currency string `json:"currency"`
		Interval string `json:"interval"`
	} `json:"salaryRange"`
}

// Search walks every configured company in order. A company that fails is
// logged and skipped; the sequence only yields an error when no company
// could be read at all.
func (s *Source) Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		var lastErr error
		okCompanies := 0

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
				s.log.Warn("company fetch failed", zap.String("company", co.Slug), zap.Error(err))
				lastErr = err
				continue
			}
			okCompanies++
		}

		if okCompanies == 0 && lastErr != nil {
			yield(domain.Job{}, lastErr)
		}
	}
}

var errStopped = errors.New("consumer stopped")

func (s *Source) searchCompany(ctx context.Context, co Company, q domain.Query, yield func(domain.Job, error) bool) error {
	for page := range s.cfg.MaxPages {
		postings, err := s.fetchPage(ctx, co, page*pageSize)
		if err != nil {
			return err
		}

		for _, p := range postings {
			j, ok := s.toJob(co, p)
			if !ok {
				continue
			}
			if j.Location == "" {
				s.hydrate(ctx, &j)
			}
			if !util.MatchesKeywords(j.Title, j.Description, q.Keywords) ||
				!util.MatchesLocation(j.Location, j.LocationType, q.Location) {
				continue
			}
			if !yield(j, nil) {
				return errStopped
			}
		}

		if len(postings) < pageSize {
			return nil
		}
	}
	return nil
}

func (s *Source) fetchPage(ctx context.Context, co Company, skip int) ([]posting, error) {
	v := url.Values{}
	v.Set("mode", "json")
	v.Set("skip", strconv.Itoa(skip))
	v.Set("limit", strconv.Itoa(pageSize))
	apiURL := fmt.Sprintf("%s/v0/postings/%s?%s", s.cfg.BaseURL, url.PathEscape(co.Slug), v.Encode())

	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, apiURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}

	var postings []posting
	if err := json.Unmarshal(body, &postings); err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "decode postings", Cause: err}
	}
	return postings, nil
}

func (s *Source) toJob(co Company, p posting) (domain.Job, bool) {
	title := util.CleanText(p.Text)
	if p.ID == "" || p.HostedURL == "" || title == "" {
		return domain.Job{}, false
	}

	company := co.Name
	if company == "" {
		company = co.Slug
	}

	desc := strings.TrimSpace(p.DescriptionPlain)
	if desc == "" {
		desc = util.HTMLText(p.Description)
	}
	if desc == "" {
		desc = title
	}

	loc := util.NormalizeLocation(p.Categories.Location)
	j := domain.Job{
		URL:          util.CanonicalizeURL(p.HostedURL),
		Title:        title,
		CompanyName:  company,
		Description:  desc,
		Source:       Name,
		Location:     loc,
		LocationType: util.ParseLocationType(p.WorkplaceType, loc),
		JobType:      p.Categories.Commitment,
		PostedDate:   util.FromUnixMillis(p.CreatedAt),
		Requirements: requirements(p, desc),
		ScrapedAt:    s.now(),
		RawData: map[string]any{
			"id":      p.ID,
			"company": co.Slug,
			"team":    p.Categories.Team,
		},
	}

	if sr := p.SalaryRange; sr != nil && (sr.Min > 0 || sr.Max > 0) {
		j.SalaryMin, j.SalaryMax = sr.Min, sr.Max
		j.SalaryCurrency = strings.ToUpper(sr.Currency)
		j.SalaryText = fmt.Sprintf("%d - %d %s", sr.Min, sr.Max, j.SalaryCurrency)
		if sr.Interval != "" {
			j.SalaryText += " " + sr.Interval
		}
	}
	return j, true
}

// requirements prefers Lever's structured lists over scraping the text.
func requirements(p posting, desc string) []string {
	var out []string
	for _, l := range p.Lists {
		h := strings.ToLower(l.Text)
		if !strings.Contains(h, "require") && !strings.Contains(h, "qualif") && !strings.Contains(h, "need") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(l.Content))
		if err != nil {
			continue
		}
		doc.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := util.CleanText(li.Text()); t != "" && len(out) < 20 {
				out = append(out, t)
			}
		})
	}
	if len(out) > 0 {
		return out
	}
	return util.ExtractRequirements(desc)
}

// hydrate fills in what the API left blank from the hosted posting page.
// Errors leave the job as it was.
func (s *Source) hydrate(ctx context.Context, j *domain.Job) {
	d, err := s.FetchDetails(ctx, j.URL)
	if err != nil || d == nil {
		if err != nil {
			s.log.Debug("hydrate failed", zap.String("url", j.URL), zap.Error(err))
		}
		return
	}
	if j.Location == "" {
		j.Location = d.Location
	}
	if j.LocationType == domain.LocationUnknown {
		j.LocationType = util.ParseLocationType(j.Location, j.Title, j.Description)
	}
}

var locationCandidates = []string{
	"[itemprop='jobLocation']",
	"[data-qa='location']",
	".location",
	".posting-categories .location",
	".posting-categories li",
}

// FetchDetails reads the hosted posting page.
func (s *Source) FetchDetails(ctx context.Context, jobURL string) (*domain.Job, error) {
	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, jobURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "parse posting", Cause: err}
	}

	j := &domain.Job{
		URL:       util.CanonicalizeURL(jobURL),
		Title:     util.CleanText(doc.Find(".posting-headline h2, h1, h2").First().Text()),
		Source:    Name,
		ScrapedAt: s.now(),
	}
	for _, sel := range locationCandidates {
		if t := util.CleanText(doc.Find(sel).First().Text()); t != "" {
			j.Location = util.NormalizeLocation(t)
			break
		}
	}
	if j.Location == "" {
		j.Location = util.FindLocation(doc)
	}

	j.Description = util.BlockText(doc.Find("[data-qa='job-description'], .section-wrapper.page-full-width, .content").First())
	j.CompanyName = s.companyFor(jobURL)
	j.LocationType = util.ParseLocationType(j.Location, j.Title)
	j.Requirements = util.ExtractRequirements(j.Description)
	return j, nil
}

// companyFor maps jobs.lever.co/<slug>/<id> back to the configured name.
func (s *Source) companyFor(jobURL string) string {
	u, err := url.Parse(jobURL)
	if err != nil {
		return ""
	}
	slug, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	for _, co := range s.cfg.Companies {
		if strings.EqualFold(co.Slug, slug) && co.Name != "" {
			return co.Name
		}
	}
	return slug
}
