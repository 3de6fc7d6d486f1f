package greenhouse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
)

const boardPage1 = `<html><body>
<div class="opening"><a href="/acme/jobs/101">Senior Go Engineer</a><span class="location">Remote</span></div>
<div class="opening"><a href="/acme/jobs/102?gh_src=x">Account Executive</a><span class="location">Boston, MA</span></div>
<div class="opening"><a href="/acme/jobs/103">View</a><span class="location">Denver, CO</span></div>
<a href="https://example.com/jobs/999">External</a>
<a href="/acme/jobs/101">Senior Go Engineer</a>
<a rel="next" href="/acme?page=2">Next</a>
</body></html>`

const boardPage2 = `<html><body>
<div class="opening"><a href="/acme/jobs/104">Platform Engineer</a><span class="location">Austin, TX</span></div>
</body></html>`

const job101 = `<html><body>
<h1 class="app-title">Senior Go Engineer</h1><div class="company-name">at Acme</div>
<div class="location">Remote - US</div>
<div id="content"><p>Join us.</p><h3>Requirements</h3><ul><li>5+ years with Go</li><li>Experience with Kubernetes</li></ul></div>
<div class="pay-range">$150K - $190K</div>
</body></html>`

const job103 = `<html><body>
<h1 class="app-title">Site Reliability Engineer</h1>
<div class="location">Denver, CO</div><div id="content">On call rotations.</div>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/acme", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, boardPage2)
			return
		}
		fmt.Fprint(w, boardPage1)
	})
	mux.HandleFunc("/acme/jobs/101", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, job101) })
	mux.HandleFunc("/acme/jobs/103", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, job103) })
	mux.HandleFunc("/acme/jobs/104", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s *Source, q domain.Query) ([]domain.Job, error) {
	t.Helper()
	var jobs []domain.Job
	for j, err := range s.Search(context.Background(), q) {
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func newSource(t *testing.T, srv *httptest.Server, pages int, slugs ...string) *Source {
	t.Helper()
	var cos []Company
	for _, s := range slugs {
		cos = append(cos, Company{Slug: s, Name: "Acme Corp"})
	}
	s, err := New(Config{BaseURL: srv.URL, Companies: cos, MaxPages: pages}, scrape.Deps{HTTP: srv.Client()})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresBoards(t *testing.T) {
	_, err := New(Config{}, scrape.Deps{})
	assert.ErrorIs(t, err, scrape.ErrUnsupported)
}

func TestSearch_BoardAndHydration(t *testing.T) {
	srv := newServer(t)
	s := newSource(t, srv, 2, "acme")

	jobs, err := collect(t, s, domain.Query{Keywords: []string{"engineer"}})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	gop := jobs[0]
	assert.Equal(t, srv.URL+"/acme/jobs/101", gop.URL)
	assert.Equal(t, "Acme Corp", gop.CompanyName)
	assert.Equal(t, "Remote - US", gop.Location)
	assert.Equal(t, domain.LocationRemote, gop.LocationType)
	assert.Contains(t, gop.Description, "Join us.")
	assert.Contains(t, gop.Requirements, "5+ years with Go")
	assert.Equal(t, 150000, gop.SalaryMin)
	assert.Equal(t, 190000, gop.SalaryMax)
	require.NoError(t, gop.Validate())

	assert.Equal(t, "Site Reliability Engineer", jobs[1].Title, "junk link titles come from the detail page")

	plat := jobs[2]
	assert.Equal(t, "Platform Engineer", plat.Title)
	assert.Equal(t, "Platform Engineer", plat.Description, "failed hydration keeps the listing")
	assert.Equal(t, "Austin, TX", plat.Location)
	require.NoError(t, plat.Validate())
}

func TestSearch_PageCapAndLocation(t *testing.T) {
	srv := newServer(t)
	s := newSource(t, srv, 1, "acme")

	jobs, err := collect(t, s, domain.Query{Location: "Denver"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Site Reliability Engineer", jobs[0].Title)

	jobs, err = collect(t, s, domain.Query{Keywords: []string{"platform"}})
	require.NoError(t, err)
	assert.Empty(t, jobs, "page 2 is past the cap")
}

func TestSearch_BoardFailures(t *testing.T) {
	srv := newServer(t)

	jobs, err := collect(t, newSource(t, srv, 1, "missing", "acme"), domain.Query{Keywords: []string{"account"}})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = collect(t, newSource(t, srv, 1, "missing"), domain.Query{})
	require.Error(t, err)
	assert.True(t, scrape.IsPermanent(err))
}

func TestFetchDetails(t *testing.T) {
	srv := newServer(t)
	s := newSource(t, srv, 1, "acme")

	j, err := s.FetchDetails(context.Background(), srv.URL+"/acme/jobs/101")
	require.NoError(t, err)
	assert.Equal(t, "Senior Go Engineer", j.Title)
	assert.Equal(t, "Acme", j.CompanyName)
	assert.Equal(t, "$150K - $190K", j.SalaryText)

	j, err = s.FetchDetails(context.Background(), srv.URL+"/acme/jobs/103")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", j.CompanyName, "falls back to the configured name")
}

func TestExtractJobID(t *testing.T) {
	assert.Equal(t, "4012", extractJobID("/acme/jobs/4012"))
	assert.Equal(t, "4012", extractJobID("/jobs/4012-go"))
	assert.Equal(t, "", extractJobID("/acme/about"))
}
