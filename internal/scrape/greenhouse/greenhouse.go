// Package greenhouse scrapes public Greenhouse job boards.
package greenhouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/util"
)

const (
	Name           = "greenhouse"
	DefaultBaseURL = "https://boards.greenhouse.io"
)

type Company struct {
	Slug string // boards.greenhouse.io/<slug>
	Name string // display name
}

type Config struct {
	Companies []Company // list of boards
	BaseURL   string
	MaxPages  int // board pages per company
}

type Source struct {
	cfg     Config
	host    string
	hc      *http.Client
	limiter *util.HostLimiter
	log     *zap.Logger
	now     func() time.Time
}

func New(cfg Config, deps scrape.Deps) (*Source, error) {
	if len(cfg.Companies) == 0 {
		return nil, fmt.Errorf("%w: greenhouse has no boards configured", scrape.ErrUnsupported)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, scrape.Permanent(fmt.Errorf("greenhouse: bad base url %q", cfg.BaseURL))
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Source{
		cfg:     cfg,
		host:    strings.ToLower(u.Host),
		hc:      deps.Client(),
		limiter: deps.Limiter,
		log:     deps.Logger().Named(Name),
		now:     time.Now,
	}, nil
}

func (s *Source) Name() string    { return Name }
func (s *Source) BaseURL() string { return s.cfg.BaseURL }

var errStopped = errors.New("consumer stopped")

// Search reads each board, keeps openings whose title matches the keywords
// and hydrates them from their detail page. One board being down does not
// fail the run unless every board is.
func (s *Source) Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		var lastErr error
		okBoards := 0

		for _, co := range s.cfg.Companies {
			err := s.searchBoard(ctx, co, q, yield)
			if errors.Is(err, errStopped) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					yield(domain.Job{}, ctx.Err())
					return
				}
				s.log.Warn("board fetch failed", zap.String("board", co.Slug), zap.Error(err))
				lastErr = err
				continue
			}
			okBoards++
		}

		if okBoards == 0 && lastErr != nil {
			yield(domain.Job{}, lastErr)
		}
	}
}

func (s *Source) searchBoard(ctx context.Context, co Company, q domain.Query, yield func(domain.Job, error) bool) error {
	pageURL := fmt.Sprintf("%s/%s", s.cfg.BaseURL, url.PathEscape(co.Slug))
	seen := map[string]bool{}

	for range s.cfg.MaxPages {
		doc, err := s.getDoc(ctx, pageURL)
		if err != nil {
			return err
		}

		for _, j := range s.parseBoard(doc, pageURL, co, seen) {
			if j.Title != "" && !util.MatchesKeywords(j.Title, "", q.Keywords) {
				continue
			}
			s.hydrate(ctx, &j)
			if j.Title == "" {
				continue
			}
			if !util.MatchesKeywords(j.Title, j.Description, q.Keywords) ||
				!util.MatchesLocation(j.Location, j.LocationType, q.Location) {
				continue
			}
			if !yield(j, nil) {
				return errStopped
			}
		}

		next, ok := doc.Find("a[rel='next']").First().Attr("href")
		if !ok || strings.TrimSpace(next) == "" {
			return nil
		}
		pageURL = util.Absolute(pageURL, next)
	}
	return nil
}

func (s *Source) getDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := scrape.Get(ctx, s.hc, s.limiter, Name, rawURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "parse html", Cause: err}
	}
	return doc, nil
}

// parseBoard collects links to /jobs/<id> on the board host. Titles that are
// really "View"/"Apply" buttons are blanked so hydration fills them in.
func (s *Source) parseBoard(doc *goquery.Document, pageURL string, co Company, seen map[string]bool) []domain.Job {
	company := co.Name
	if company == "" {
		company = co.Slug
	}

	var jobs []domain.Job
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := util.Absolute(pageURL, href)
		u, err := url.Parse(abs)
		if err != nil || !s.onBoardHost(u.Host) {
			return
		}

		jobID := extractJobID(u.Path)
		if jobID == "" {
			return
		}
		key := co.Slug + ":" + jobID
		if seen[key] {
			return
		}
		seen[key] = true

		title := util.CleanText(a.Text())
		if looksLikeJunkTitle(title) {
			title = ""
		}
		loc := util.FindLocationIn(a.Closest(".opening, li, tr"))

		jobs = append(jobs, domain.Job{
			URL:          util.CanonicalizeURL(abs),
			Title:        title,
			CompanyName:  company,
			Source:       Name,
			Location:     loc,
			LocationType: util.ParseLocationType(loc),
			ScrapedAt:    s.now(),
			RawData:      map[string]any{"board": co.Slug, "id": jobID},
		})
	})
	return jobs
}

func (s *Source) onBoardHost(host string) bool {
	host = strings.ToLower(host)
	return host == s.host || strings.HasSuffix(host, "greenhouse.io")
}

// hydrate copies detail-page fields into j. Failures keep the listing data
// with the title standing in for the description.
func (s *Source) hydrate(ctx context.Context, j *domain.Job) {
	d, err := s.FetchDetails(ctx, j.URL)
	if err != nil {
		s.log.Debug("hydrate failed", zap.String("url", j.URL), zap.Error(err))
	}
	if d != nil {
		if j.Title == "" {
			j.Title = d.Title
		}
		if d.Location != "" {
			j.Location = d.Location
		}
		j.Description = d.Description
		j.Requirements = d.Requirements
		j.SalaryText, j.SalaryMin, j.SalaryMax, j.SalaryCurrency = d.SalaryText, d.SalaryMin, d.SalaryMax, d.SalaryCurrency
	}
	if j.Description == "" {
		j.Description = j.Title
	}
	j.LocationType = util.ParseLocationType(j.Location, j.Title)
}

// FetchDetails reads one job page.
func (s *Source) FetchDetails(ctx context.Context, jobURL string) (*domain.Job, error) {
	doc, err := s.getDoc(ctx, jobURL)
	if err != nil {
		return nil, err
	}

	j := &domain.Job{
		URL:       util.CanonicalizeURL(jobURL),
		Title:     util.CleanText(doc.Find(".app-title, h1").First().Text()),
		Source:    Name,
		ScrapedAt: s.now(),
	}

	j.CompanyName = strings.TrimPrefix(util.CleanText(doc.Find(".company-name").First().Text()), "at ")
	if j.CompanyName == "" {
		j.CompanyName = s.companyFor(jobURL)
	}

	j.Location = util.NormalizeLocation(doc.Find(".location").First().Text())
	if j.Location == "" {
		j.Location = util.FindLocation(doc)
	}
	j.LocationType = util.ParseLocationType(j.Location, j.Title)

	content := doc.Find("#content, .job__description").First()
	j.Description = util.BlockText(content)
	j.Requirements = util.ExtractRequirements(j.Description)

	if pay := util.CleanText(doc.Find(".pay-range, [class*='salary']").First().Text()); pay != "" {
		sal := util.ParseSalary(pay)
		j.SalaryText = pay
		j.SalaryCurrency = sal.Currency
		if sal.Min != nil {
			j.SalaryMin = *sal.Min
		}
		if sal.Max != nil {
			j.SalaryMax = *sal.Max
		}
	}
	return j, nil
}

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

// extractJobID returns the digits following /jobs/ in path.
func extractJobID(path string) string {
	_, tail, ok := strings.Cut(path, "/jobs/")
	if !ok {
		return ""
	}
	end := 0
	for end < len(tail) && tail[end] >= '0' && tail[end] <= '9' {
		end++
	}
	return tail[:end]
}

func looksLikeJunkTitle(t string) bool {
	l := strings.ToLower(t)
	return l == "" || strings.HasPrefix(l, "view") || strings.HasPrefix(l, "apply")
}
