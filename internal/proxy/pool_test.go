package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const probeURL = "http://probe.test/ip"

// proxyServer answers every request, including absolute-form proxy
// requests, with 200.
func proxyServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"origin":"203.0.113.7"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deadAddr(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()
	return addr
}

func hostPort(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func feedServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Join(lines, "\n")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPool(cfg Config, feeds ...string) *Pool {
	cfg.Feeds = feeds
	cfg.ProbeURL = probeURL
	cfg.ValidationTimeout = 2 * time.Second
	return NewPool(cfg, nil, nil, zap.NewNop())
}

func TestParseFeed(t *testing.T) {
	got := parseFeed(strings.Join([]string{
		"1.2.3.4:8080",
		"# comment",
		"",
		"bad line",
		"5.6.7.8:99999",
		"nohost",
		"http://9.9.9.9:3128 US elite",
		"[::1]:80",
	}, "\n"))

	var addrs []string
	for _, p := range got {
		addrs = append(addrs, p.Addr())
	}
	assert.Equal(t, []string{"1.2.3.4:8080", "9.9.9.9:3128", "[::1]:80"}, addrs)
	assert.Equal(t, "http://1.2.3.4:8080", got[0].URL())
}

func TestScoreAndHealth(t *testing.T) {
	tests := []struct {
		name    string
		p       Proxy
		score   int
		healthy bool
	}{
		{"fresh", Proxy{}, 100, true},
		{"successes capped", Proxy{SuccessCount: 10}, 130, true},
		{"two fails", Proxy{FailCount: 2, SuccessCount: 1}, 65, true},
		{"three fails", Proxy{FailCount: 3}, 40, false},
		{"slow", Proxy{ResponseTime: 3 * time.Second}, 90, true},
		{"very slow", Proxy{ResponseTime: 6 * time.Second}, 80, true},
		{"too slow", Proxy{ResponseTime: 11 * time.Second}, 80, false},
		{"floored", Proxy{FailCount: 9}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, tt.p.Score())
			assert.Equal(t, tt.healthy, tt.p.Healthy())
		})
	}
}

func TestRefresh_ValidatesAndBlacklists(t *testing.T) {
	good := proxyServer(t)
	dead := deadAddr(t)
	feed := feedServer(t, hostPort(good), dead, "garbage", hostPort(good))

	p := newTestPool(Config{MaxSize: 10}, feed.URL)
	require.NoError(t, p.Refresh(context.Background()))

	st := p.Stats()
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, 1, st.Healthy)
	assert.Equal(t, 1, st.Blacklisted)
	assert.False(t, st.LastRefresh.IsZero())

	url, ok := p.GetProxy(context.Background())
	require.True(t, ok)
	assert.Equal(t, good.URL, url)

	// pooled and blacklisted entries are not candidates again
	cands, err := p.fetchCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRefresh_AllFeedsFail(t *testing.T) {
	p := newTestPool(Config{}, "http://"+deadAddr(t)+"/feed.txt")
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, 0, p.Stats().Size)
}

func TestRefresh_RespectsMaxSize(t *testing.T) {
	a, b, c := proxyServer(t), proxyServer(t), proxyServer(t)
	feed := feedServer(t, hostPort(a), hostPort(b), hostPort(c))

	p := newTestPool(Config{MaxSize: 2}, feed.URL)
	require.NoError(t, p.Refresh(context.Background()))

	st := p.Stats()
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, 0, st.Blacklisted, "healthy overflow is dropped, not blacklisted")
}

func TestFetchCandidates_Capped(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("10.0.0.%d:8080", i))
	}
	feed := feedServer(t, lines...)

	p := newTestPool(Config{MaxCandidates: 3}, feed.URL)
	cands, err := p.fetchCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, cands, 3)
}

func TestGetProxy_LazyInit(t *testing.T) {
	good := proxyServer(t)
	feed := feedServer(t, hostPort(good))

	p := newTestPool(Config{}, feed.URL)
	url, ok := p.GetProxy(context.Background())
	require.True(t, ok)
	assert.Equal(t, good.URL, url)
}

func TestGetProxy_RetriesAfterFailedInit(t *testing.T) {
	good := proxyServer(t)
	feed := feedServer(t, hostPort(good))
	p := newTestPool(Config{}, feed.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := p.GetProxy(ctx)
	assert.False(t, ok)
	assert.False(t, p.isInitialized(), "cancelled fill does not count")

	url, ok := p.GetProxy(context.Background())
	require.True(t, ok)
	assert.Equal(t, good.URL, url)
	assert.True(t, p.isInitialized())
}

func TestRefresh_FailureLeavesPoolUninitialized(t *testing.T) {
	p := newTestPool(Config{}, "http://"+deadAddr(t)+"/feed.txt")
	require.Error(t, p.Refresh(context.Background()))
	assert.False(t, p.isInitialized())
}

func seeded(p *Pool, ps ...Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range ps {
		px := ps[i]
		p.proxies[px.URL()] = &px
	}
	p.initialized = true
}

func TestGetProxy_TopKHealthyOnly(t *testing.T) {
	p := newTestPool(Config{})
	var ps []Proxy
	for i := 1; i <= 7; i++ {
		// score grows with i until the success bonus caps at i=6
		ps = append(ps, Proxy{Host: fmt.Sprintf("10.0.0.%d", i), Port: 80, SuccessCount: i})
	}
	ps = append(ps, Proxy{Host: "10.0.0.99", Port: 80, SuccessCount: 9, ResponseTime: 20 * time.Second})
	seeded(p, ps...)

	top := map[string]bool{}
	for i := 3; i <= 7; i++ {
		top[fmt.Sprintf("http://10.0.0.%d:80", i)] = true
	}

	for n := range 5 {
		p.pick = func(int) int { return n }
		url, ok := p.GetProxy(context.Background())
		require.True(t, ok)
		assert.True(t, top[url], "%s not in top 5", url)
	}

	assert.Equal(t,
		[]string{"http://10.0.0.6:80", "http://10.0.0.7:80", "http://10.0.0.5:80"},
		p.GetProxies(context.Background(), 3),
	)
	assert.Len(t, p.GetProxies(context.Background(), 50), 7)
}

func TestReportFailureEvicts(t *testing.T) {
	p := newTestPool(Config{})
	px := Proxy{Host: "10.0.0.1", Port: 3128, SuccessCount: 1}
	seeded(p, px)

	p.ReportFailure(px.URL())
	p.ReportFailure(px.URL())
	p.ReportSuccess(px.URL())
	assert.Equal(t, 1, p.Stats().Size, "success decays the failure count")

	p.ReportFailure(px.URL())
	p.ReportFailure(px.URL())
	st := p.Stats()
	assert.Equal(t, 0, st.Size)
	assert.Equal(t, 1, st.Blacklisted)

	_, ok := p.GetProxy(context.Background())
	assert.False(t, ok)

	p.ReportFailure("http://unknown:1")
}

func TestReportLatencyEvictsSlow(t *testing.T) {
	p := newTestPool(Config{})
	fast := Proxy{Host: "10.0.0.1", Port: 80}
	slow := Proxy{Host: "10.0.0.2", Port: 80}
	seeded(p, fast, slow)

	p.ReportLatency(fast.URL(), 3*time.Second)
	p.ReportLatency(slow.URL(), 11*time.Second)

	assert.Equal(t, []string{fast.URL()}, p.GetProxies(context.Background(), 5))
	assert.Equal(t, 1, p.Stats().Blacklisted)
}

func TestHealthCheck_EvictsAfterThreeFailures(t *testing.T) {
	good := proxyServer(t)
	feed := feedServer(t, hostPort(good))
	p := newTestPool(Config{}, feed.URL)
	ctx := context.Background()
	require.NoError(t, p.Refresh(ctx))
	require.Equal(t, 1, p.Stats().Size)

	require.NoError(t, p.HealthCheck(ctx))
	assert.Equal(t, 1, p.Stats().Size)

	good.Close()
	for range 2 {
		require.NoError(t, p.HealthCheck(ctx))
		assert.Equal(t, 1, p.Stats().Size)
	}
	require.NoError(t, p.HealthCheck(ctx))
	assert.Equal(t, 0, p.Stats().Size)
}

func TestStartAndClose(t *testing.T) {
	good := proxyServer(t)
	feed := feedServer(t, hostPort(good))
	p := newTestPool(Config{RefreshInterval: time.Hour}, feed.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	assert.Eventually(t, func() bool { return p.Stats().Size == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Close())
}
