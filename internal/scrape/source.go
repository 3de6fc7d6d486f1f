// Package scrape defines what a job source is and how sources are registered
// and constructed.
package scrape

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scrape/util"
)

const UserAgent = "JobScout/1.0 (+local)"

// Source is one job board. Search streams jobs lazily; a yielded error ends
// the sequence. FetchDetails may return (nil, nil) when there is nothing
// richer than the listing.
type Source interface {
	Name() string
	BaseURL() string
	Search(ctx context.Context, q domain.Query) iter.Seq2[domain.Job, error]
	FetchDetails(ctx context.Context, url string) (*domain.Job, error)
}

// Deps are the shared resources handed to every source constructor. Any
// field may be nil; sources that need a missing pool fail with
// ErrUnsupported.
type Deps struct {
	Browser *browser.Pool
	Proxies *proxy.Pool
	Limiter *util.HostLimiter
	HTTP    *http.Client
	Log     *zap.Logger
}

type Constructor func(Deps) (Source, error)

func (d Deps) Client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func (d Deps) Logger() *zap.Logger {
	if d.Log != nil {
		return d.Log
	}
	return zap.NewNop()
}

// Get fetches rawURL with the shared client after waiting on the host
// limiter, and returns the body. Non-2xx responses become errors classified
// by CheckStatus.
func Get(ctx context.Context, hc *http.Client, limiter *util.HostLimiter, source, rawURL string, header http.Header) ([]byte, error) {
	if err := limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Permanent(&SourceError{Source: source, Op: "build request", Cause: err})
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := hc.Do(req)
	if err != nil {
		return nil, &SourceError{Source: source, Op: "get " + rawURL, Cause: err}
	}
	defer res.Body.Close()

	if err := CheckStatus(source, "get "+rawURL, res.StatusCode); err != nil {
		return nil, err
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", source, err)
	}
	return b, nil
}
