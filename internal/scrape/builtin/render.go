package builtin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scrape"
)

// browserRenderer leases a tab per page. With a proxy pool the tab egresses
// through a pooled proxy and the outcome is reported back.
type browserRenderer struct {
	pool    *browser.Pool
	proxies *proxy.Pool
	log     *zap.Logger
}

func (r *browserRenderer) Render(ctx context.Context, url string, scrolls int) (string, error) {
	var (
		prof     *browser.Profile
		proxyURL string
	)
	if r.proxies != nil {
		if p, ok := r.proxies.GetProxy(ctx); ok {
			proxyURL = p
			prof = &browser.Profile{Proxy: p}
		}
	}

	bc, err := r.pool.AcquireContext(ctx, prof)
	if err != nil {
		return "", classify(err)
	}
	defer bc.Release()

	start := time.Now()
	html, err := bc.Navigate(url, "")
	if err == nil && scrolls > 0 {
		html, err = bc.Scroll(scrolls)
	}

	if proxyURL != "" {
		if err != nil {
			r.proxies.ReportFailure(proxyURL)
		} else {
			r.proxies.ReportSuccess(proxyURL)
			r.proxies.ReportLatency(proxyURL, time.Since(start))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &scrape.SourceError{Source: Name, Op: "render " + url, Cause: err}
	}
	return html, nil
}

// classify maps pool failures onto the source error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, browser.ErrChromeNotFound):
		return fmt.Errorf("%w: %w", scrape.ErrUnsupported, err)
	case errors.Is(err, browser.ErrPoolClosed):
		return scrape.Permanent(err)
	}
	return err
}
