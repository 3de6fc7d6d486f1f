package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Context is one leased browser tab.
type Context struct {
	ctx        context.Context
	cancel     context.CancelFunc
	Profile    Profile
	pool       *Pool
	dedicated  *process
	navTimeout time.Duration

	once sync.Once
	mu   sync.Mutex
	stop func() bool
}

// Ctx is the chromedp context for running custom actions on the tab.
func (c *Context) Ctx() context.Context { return c.ctx }

// Release closes the tab and returns its slot to the pool. Safe to call more
// than once.
func (c *Context) Release() {
	c.once.Do(func() {
		c.mu.Lock()
		stop := c.stop
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		c.cancel()
		if c.dedicated != nil {
			c.dedicated.cancel()
		}
		c.pool.release()
	})
}

// Navigate loads url, waits for waitSelector (or body when empty) and
// returns the rendered HTML.
func (c *Context) Navigate(url, waitSelector string) (string, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.navTimeout)
	defer cancel()

	wait := chromedp.WaitReady("body", chromedp.ByQuery)
	if waitSelector != "" {
		wait = chromedp.WaitVisible(waitSelector, chromedp.ByQuery)
	}

	var html string
	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		wait,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return html, nil
}

// Scroll scrolls n viewports down to trigger lazy loading, then back to the
// top, and returns the resulting HTML.
func (c *Context) Scroll(n int) (string, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.navTimeout)
	defer cancel()

	var actions []chromedp.Action
	for range n {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
			chromedp.Sleep(500*time.Millisecond),
		)
	}
	var html string
	actions = append(actions,
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("scroll: %w", err)
	}
	return html, nil
}
