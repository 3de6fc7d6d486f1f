package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/domain"
)

func TestCanonicalizeURL(t *testing.T) {
	got := CanonicalizeURL("HTTPS://Jobs.Example.COM/role/1?utm_source=x&b=2&a=1&gclid=z#apply")
	assert.Equal(t, "https://jobs.example.com/role/1?a=1&b=2", got)
	assert.Equal(t, "", CanonicalizeURL("  "))

	tests := map[string]string{
		"https://jobs.lever.co:443/acme/abc-123/apply?lever-source=LinkedIn": "https://jobs.lever.co/acme/abc-123",
		"https://boards.greenhouse.io/acme/jobs/101/?gh_src=x&gh_jid=101":    "https://boards.greenhouse.io/acme/jobs/101?gh_jid=101",
		"http://127.0.0.1:8080/x/":                                           "http://127.0.0.1:8080/x",
		"https://example.com/":                                               "https://example.com/",
		"not a url":                                                          "not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalizeURL(in), in)
	}
}

func TestAbsolute(t *testing.T) {
	assert.Equal(t, "https://builtin.com/job/123", Absolute("https://builtin.com/jobs?page=2", "/job/123"))
	assert.Equal(t, "https://other.example/x", Absolute("https://builtin.com/", "https://other.example/x"))
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "Austin, TX", NormalizeLocation("Location: Austin,  TX, austin"))
	assert.Equal(t, "", NormalizeLocation("   "))
}

func TestParseLocationType(t *testing.T) {
	assert.Equal(t, domain.LocationRemote, ParseLocationType("Remote (US)"))
	assert.Equal(t, domain.LocationHybrid, ParseLocationType("Remote or hybrid in NYC"))
	assert.Equal(t, domain.LocationHybrid, ParseLocationType("Seattle", "Hybrid"))
	assert.Equal(t, domain.LocationOnsite, ParseLocationType("On-site, Denver"))
	assert.Equal(t, domain.LocationUnknown, ParseLocationType("Denver, CO"))
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		currency string
	}{
		{"$120K - $180K", 120000, 180000, "USD"},
		{"150,000 - 200,000 USD", 150000, 200000, "USD"},
		{"£60k", 60000, 60000, "GBP"},
		{"€90K-€70K", 70000, 90000, "EUR"},
		{"CAD 95,000", 95000, 95000, "CAD"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := ParseSalary(tt.in)
			require.NotNil(t, s.Min)
			require.NotNil(t, s.Max)
			assert.Equal(t, tt.min, *s.Min)
			assert.Equal(t, tt.max, *s.Max)
			assert.Equal(t, tt.currency, s.Currency)
		})
	}

	empty := ParseSalary("Competitive")
	assert.Nil(t, empty.Min)
	assert.Equal(t, "USD", empty.Currency)
}

func TestParsePostedDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		in   string
		want time.Time
	}{
		{"Just posted", day(3, 15)},
		{"5 hours ago", day(3, 15)},
		{"Yesterday", day(3, 14)},
		{"3 days ago", day(3, 12)},
		{"30+ days ago", day(2, 14)},
		{"2 weeks ago", day(3, 1)},
		{"1 month ago", day(2, 14)},
		{"2024-01-05", day(1, 5)},
		{"Jan 9, 2024", day(1, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePostedDate(tt.in, now)
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
		})
	}

	assert.Nil(t, ParsePostedDate("", now))
	assert.Nil(t, ParsePostedDate("sometime", now))
	assert.Nil(t, FromUnixMillis(0))
	assert.Equal(t, int64(1700000000000), FromUnixMillis(1700000000000).UnixMilli())
}

func TestExtractRequirements(t *testing.T) {
	desc := strings.Join([]string{
		"We build infrastructure in Go and Kubernetes.",
		"Requirements:",
		"- 5+ years building distributed systems",
		"- Experience with PostgreSQL",
		"* ok",
		"",
		"We use Google Cloud.",
	}, "\n")

	got := ExtractRequirements(desc)
	assert.Equal(t, []string{
		"5+ years building distributed systems",
		"Experience with PostgreSQL",
		"Go",
		"Kubernetes",
		"PostgreSQL",
	}, got)

	assert.Nil(t, ExtractRequirements(""))
}

func TestHTMLText(t *testing.T) {
	assert.Equal(t, "Build APIs.", HTMLText("<p>Build APIs.</p>"))
	assert.Equal(t, "plain text", HTMLText("  plain\u00a0text "))

	got := HTMLText("<p>We run Go.</p><h3>Requirements</h3><ul><li>5+ years with Go</li><li>On call <b>rotation</b></li></ul>")
	assert.Equal(t, "We run Go.\nRequirements\n- 5+ years with Go\n- On call rotation", got)
	assert.Equal(t, []string{"5+ years with Go", "On call rotation", "Go"}, ExtractRequirements(got))
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, MatchesKeywords("Senior Backend Engineer", "", []string{"backend engineer"}))
	assert.True(t, MatchesKeywords("Engineer II", "An engineer for our backend team", []string{"backend engineer"}))
	assert.False(t, MatchesKeywords("Designer", "", []string{"backend", "devops"}))
	assert.True(t, MatchesKeywords("Anything", "", nil))
}

func TestMatchesLocation(t *testing.T) {
	assert.True(t, MatchesLocation("Anywhere", domain.LocationRemote, "remote"))
	assert.True(t, MatchesLocation("Remote - US", domain.LocationUnknown, "Remote"))
	assert.False(t, MatchesLocation("Austin, TX", domain.LocationOnsite, "remote"))
	assert.True(t, MatchesLocation("Austin, TX", domain.LocationOnsite, "austin"))
	assert.False(t, MatchesLocation("", domain.LocationUnknown, "austin"))
	assert.True(t, MatchesLocation("", domain.LocationUnknown, ""))
}

func TestFindLocation(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div class="job__location"> Remote,  US </div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Remote, US", FindLocation(doc))

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><p>Team: Infra</p><p>Location: Berlin, Germany</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Berlin, Germany", FindLocation(doc))

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<html><head>
<script type="application/ld+json">{"@type":"Organization","name":"Acme"}</script>
<script type="application/ld+json">{"@type":"JobPosting","jobLocationType":"TELECOMMUTE",
 "jobLocation":[{"address":{"addressLocality":"Denver","addressRegion":"CO","addressCountry":{"name":"US"}}}]}</script>
</head><body><div class="location">Ignored</div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Remote; Denver, CO, US", FindLocation(doc))
}

func TestHostLimiter(t *testing.T) {
	hl := NewHostLimiter(1000, 1)
	ctx := context.Background()
	require.NoError(t, hl.WaitURL(ctx, "https://api.lever.co/v0/postings/x"))
	require.NoError(t, hl.WaitURL(ctx, "::not a url"))

	var nilLimiter *HostLimiter
	assert.NoError(t, nilLimiter.WaitURL(ctx, "https://x.example"))

	assert.Equal(t, 2, hl.Hosts())

	slow := NewHostLimiter(0.001, 1)
	require.NoError(t, slow.WaitURL(ctx, "https://a.example"))
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.WaitURL(cctx, "https://a.example/again"))

	slow.Override("A.example", 1000)
	assert.NoError(t, slow.WaitURL(ctx, "https://a.example/third"))
	assert.Equal(t, 1, slow.Hosts())
}
