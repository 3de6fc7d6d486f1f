// Package smartrecruiters reads public postings from the SmartRecruiters
// posting API for a configured list of companies.
package smartrecruiters

import (
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
	Name               = "smartrecruiters"
	DefaultBaseURL     = "https://api.smartrecruiters.com"
	DefaultJobsBaseURL = "https://jobs.smartrecruiters.com"
	pageSize           = 100
)

type Company struct {
	// Slug is the company identifier in jobs.smartrecruiters.com/<slug>.
	Slug string
	Name string
}

type Config struct {
	Companies   []Company
	BaseURL     string
	JobsBaseURL string
	MaxPages    int // per company
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
		return nil, fmt.Errorf("%w: smartrecruiters has no companies configured", scrape.ErrUnsupported)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.JobsBaseURL == "" {
		cfg.JobsBaseURL = DefaultJobsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.JobsBaseURL = strings.TrimRight(cfg.JobsBaseURL, "/")
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

// Response schema of the public API:
// { "content": [...], "totalFound": N, "offset": O, "limit": L }
type postingsResponse struct {
	Content    []posting `json:"content"`
	TotalFound int       `json:"totalFound"`
}

type label struct {
	Label string `json:"label"`
}

type posting struct {
	ID           string    `json:"id"`
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	ReleasedDate time.Time `json:"releasedDate"`
	Location     struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
		Remote  bool   `json:"remote"`
	} `json:"location"`
	Company struct {
		Name string `json:"name"`
	} `json:"company"`
	TypeOfEmployment label `json:"typeOfEmployment"`
	ExperienceLevel  label `json:"experienceLevel"`
	Department       label `json:"department"`

	// only on the single-posting endpoint
	JobAd *struct {
		Sections struct {
			CompanyDescription section `json:"companyDescription"`
			JobDescription     section `json:"jobDescription"`
			Qualifications     section `json:"qualifications"`
		} `json:"sections"`
	} `json:"jobAd"`
}

type section struct {
	Title string `json:"title"`
	Text  string `json:"text"` // html
}

var errStopped = errors.New("consumer stopped")

// Search walks every configured company. Failing companies are logged and
// skipped; an error is yielded only when none could be read.
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
				s.log.Warn("company fetch failed", zap.String("company", co.Slug), zap.Error(err))
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

func (s *Source) searchCompany(ctx context.Context, co Company, q domain.Query, yield func(domain.Job, error) bool) error {
	for page := range s.cfg.MaxPages {
		offset := page * pageSize
		pr, err := s.fetchPage(ctx, co, offset)
		if err != nil {
			return err
		}

		for _, p := range pr.Content {
			j, ok := s.toJob(co, p)
			if !ok {
				continue
			}
			// title first so non-matching postings cost no detail request
			if !util.MatchesKeywords(j.Title, "", q.Keywords) ||
				!util.MatchesLocation(j.Location, j.LocationType, q.Location) {
				continue
			}
			s.hydrate(ctx, &j)
			if !yield(j, nil) {
				return errStopped
			}
		}

		if len(pr.Content) < pageSize || (pr.TotalFound > 0 && offset+pageSize >= pr.TotalFound) {
			return nil
		}
	}
	return nil
}

func (s *Source) hydrate(ctx context.Context, j *domain.Job) {
	d, err := s.FetchDetails(ctx, j.URL)
	if err != nil {
		s.log.Debug("hydrate failed", zap.String("url", j.URL), zap.Error(err))
		return
	}
	if d.Description != "" {
		j.Description = d.Description
	}
	if len(d.Requirements) > 0 {
		j.Requirements = d.Requirements
	}
}

func (s *Source) fetchPage(ctx context.Context, co Company, offset int) (postingsResponse, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(pageSize))
	v.Set("offset", strconv.Itoa(offset))
	apiURL := fmt.Sprintf("%s/v1/companies/%s/postings?%s", s.cfg.BaseURL, url.PathEscape(co.Slug), v.Encode())

	var pr postingsResponse
	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, apiURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return pr, err
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return pr, &scrape.SourceError{Source: Name, Op: "decode postings", Cause: err}
	}
	return pr, nil
}

func (s *Source) toJob(co Company, p posting) (domain.Job, bool) {
	title := util.CleanText(p.Name)
	id := firstNonEmpty(p.ID, p.UUID)
	if title == "" || id == "" {
		return domain.Job{}, false
	}

	company := firstNonEmpty(co.Name, p.Company.Name, co.Slug)
	loc := util.NormalizeLocation(strings.Join(nonEmpty(p.Location.City, p.Location.Region, p.Location.Country), ", "))
	lt := util.ParseLocationType(loc, title)
	if p.Location.Remote {
		lt = domain.LocationRemote
		if loc == "" {
			loc = "Remote"
		}
	}

	j := domain.Job{
		URL:             fmt.Sprintf("%s/%s/%s", s.cfg.JobsBaseURL, url.PathEscape(co.Slug), url.PathEscape(id)),
		Title:           title,
		CompanyName:     company,
		Description:     title,
		Source:          Name,
		Location:        loc,
		LocationType:    lt,
		JobType:         strings.ToLower(p.TypeOfEmployment.Label),
		ExperienceLevel: strings.ToLower(p.ExperienceLevel.Label),
		ScrapedAt:       s.now(),
		RawData: map[string]any{
			"id":         id,
			"company":    co.Slug,
			"department": p.Department.Label,
		},
	}
	if !p.ReleasedDate.IsZero() {
		posted := p.ReleasedDate.UTC()
		j.PostedDate = &posted
	}
	return j, true
}

// FetchDetails reads one posting through the API. jobURL is the public
// jobs.smartrecruiters.com/<slug>/<id> link a search produced.
func (s *Source) FetchDetails(ctx context.Context, jobURL string) (*domain.Job, error) {
	slug, id, err := splitJobURL(jobURL)
	if err != nil {
		return nil, scrape.Permanent(&scrape.SourceError{Source: Name, Op: "parse job url", Cause: err})
	}

	apiURL := fmt.Sprintf("%s/v1/companies/%s/postings/%s", s.cfg.BaseURL, url.PathEscape(slug), url.PathEscape(id))
	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, apiURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	var p posting
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "decode posting", Cause: err}
	}

	co := Company{Slug: slug}
	for _, c := range s.cfg.Companies {
		if strings.EqualFold(c.Slug, slug) {
			co = c
			break
		}
	}
	j, ok := s.toJob(co, p)
	if !ok {
		return nil, &scrape.SourceError{Source: Name, Op: "decode posting", Cause: errors.New("posting has no id or title")}
	}

	if ad := p.JobAd; ad != nil {
		desc := util.HTMLText(ad.Sections.JobDescription.Text)
		quals := ad.Sections.Qualifications.Text
		if q := util.HTMLText(quals); q != "" {
			desc = strings.TrimSpace(desc + "\n" + q)
		}
		if desc != "" {
			j.Description = desc
		}
		j.Requirements = listItems(quals)
		if len(j.Requirements) == 0 {
			j.Requirements = util.ExtractRequirements(j.Description)
		}
	}
	return &j, nil
}

func splitJobURL(jobURL string) (slug, id string, err error) {
	u, err := url.Parse(jobURL)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("want /<company>/<posting>, got %q", u.Path)
	}
	// the public link may carry a title slug after a numeric id: /<co>/<id>-backend-engineer
	id = parts[1]
	if head, _, ok := strings.Cut(id, "-"); ok && isDigits(head) {
		id = head
	}
	return parts[0], id, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func listItems(html string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if t := util.CleanText(li.Text()); t != "" && len(out) < 20 {
			out = append(out, t)
		}
	})
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
