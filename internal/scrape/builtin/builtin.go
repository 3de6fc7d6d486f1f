// Package builtin scrapes BuiltIn job listings. Pages are rendered client
// side, so every fetch goes through the shared browser pool.
package builtin

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/util"
)

const (
	Name           = "builtin"
	DefaultBaseURL = "https://builtin.com"

	// fewer cards than this means the last page
	minFullPage = 5
	scrolls     = 4
)

type Config struct {
	BaseURL  string
	UseProxy bool
	MaxPages int
}

// renderer turns a URL into rendered HTML.
type renderer interface {
	Render(ctx context.Context, url string, scrolls int) (string, error)
}

type Source struct {
	cfg      Config
	regional bool
	render   renderer
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg Config, deps scrape.Deps) (*Source, error) {
	if deps.Browser == nil {
		return nil, fmt.Errorf("%w: builtin needs the browser pool", scrape.ErrUnsupported)
	}
	r := &browserRenderer{pool: deps.Browser, log: deps.Logger().Named(Name)}
	if cfg.UseProxy {
		r.proxies = deps.Proxies
	}
	return newSource(cfg, r, deps.Logger()), nil
}

func newSource(cfg Config, r renderer, log *zap.Logger) *Source {
	regional := cfg.BaseURL == ""
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Source{cfg: cfg, regional: regional, render: r, log: log.Named(Name), now: time.Now}
}

func (s *Source) Name() string    { return Name }
func (s *Source) BaseURL() string { return s.cfg.BaseURL }

// Search renders result pages until one comes back short or the page cap is
// reached.
func (s *Source) Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		seen := map[string]bool{}

		for page := 1; page <= s.cfg.MaxPages; page++ {
			pageURL := s.searchURL(q, page)
			s.log.Debug("rendering page", zap.Int("page", page), zap.String("url", pageURL))

			html, err := s.render.Render(ctx, pageURL, scrolls)
			if err != nil {
				yield(domain.Job{}, err)
				return
			}

			cards, err := parseCards(html, pageURL, s.now())
			if err != nil {
				yield(domain.Job{}, &scrape.SourceError{Source: Name, Op: "parse page", Cause: err})
				return
			}
			if len(cards) == 0 {
				return
			}

			for _, j := range cards {
				if seen[j.URL] {
					continue
				}
				seen[j.URL] = true
				if !util.MatchesKeywords(j.Title, j.Description, q.Keywords) ||
					!util.MatchesLocation(j.Location, j.LocationType, q.Location) {
					continue
				}
				if !yield(j, nil) {
					return
				}
			}

			if len(cards) < minFullPage {
				return
			}
		}
	}
}

// FetchDetails renders a posting page for the full description.
func (s *Source) FetchDetails(ctx context.Context, jobURL string) (*domain.Job, error) {
	html, err := s.render.Render(ctx, jobURL, 0)
	if err != nil {
		return nil, err
	}
	j, err := parseDetails(html, jobURL, s.now())
	if err != nil {
		return nil, &scrape.SourceError{Source: Name, Op: "parse details", Cause: err}
	}
	return j, nil
}

var regionalSites = []struct{ key, base string }{
	{"new york", "https://www.builtinnyc.com"},
	{"nyc", "https://www.builtinnyc.com"},
	{"los angeles", "https://www.builtinla.com"},
	{"chicago", "https://www.builtinchicago.com"},
	{"boston", "https://www.builtinboston.com"},
	{"colorado", "https://www.builtincolorado.com"},
	{"denver", "https://www.builtincolorado.com"},
	{"seattle", "https://www.builtinseattle.com"},
	{"san francisco", "https://www.builtinsf.com"},
	{"austin", "https://www.builtinaustin.com"},
}

func (s *Source) siteFor(location string) string {
	if !s.regional {
		return s.cfg.BaseURL
	}
	loc := strings.ToLower(location)
	for _, r := range regionalSites {
		if strings.Contains(loc, r.key) {
			return r.base
		}
	}
	return s.cfg.BaseURL
}

var (
	experienceFilter = map[string]string{
		"entry": "entry", "mid": "mid-level", "senior": "senior", "lead": "manager", "executive": "director",
	}
	companySizeFilter = map[string]string{
		"startup": "1-10,11-50", "small": "51-200", "medium": "201-500,501-1000",
		"large": "1001-5000", "enterprise": "5001+",
	}
)

func (s *Source) searchURL(q domain.Query, page int) string {
	v := url.Values{}
	if len(q.Keywords) > 0 {
		v.Set("search", strings.Join(q.Keywords, " "))
	}
	if q.WantsRemote() {
		v.Set("remote", "true")
	}
	if e, ok := experienceFilter[q.Filters["experience_level"]]; ok {
		v.Set("experience", e)
	}
	if cs, ok := companySizeFilter[q.Filters["company_size"]]; ok {
		v.Set("company_size", cs)
	}
	for _, k := range []string{"industry", "category"} {
		if f := q.Filters[k]; f != "" {
			v.Set(k, f)
		}
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}

	u := s.siteFor(q.Location) + "/jobs"
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}
