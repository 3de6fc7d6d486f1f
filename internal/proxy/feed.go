package proxy

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parseFeed reads host:port lines. Comments, blanks and anything that does
// not parse are skipped.
func parseFeed(body string) []Proxy {
	var out []Proxy
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if p, ok := parseLine(sc.Text()); ok {
			out = append(out, p)
		}
	}
	return out
}

func parseLine(line string) (Proxy, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Proxy{}, false
	}
	line = strings.TrimPrefix(line, "http://")
	// some feeds append country or anonymity after whitespace
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		line = line[:i]
	}

	host, portStr, err := net.SplitHostPort(line)
	if err != nil || host == "" {
		return Proxy{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Proxy{}, false
	}
	return Proxy{Host: host, Port: port, Protocol: "http"}, true
}

// fetchCandidates downloads every feed concurrently and returns up to
// MaxCandidates distinct proxies that are neither blacklisted nor already
// pooled. It fails only when every feed fails.
func (p *Pool) fetchCandidates(ctx context.Context) ([]Proxy, error) {
	bodies := make([]string, len(p.cfg.Feeds))
	errs := make([]error, len(p.cfg.Feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range p.cfg.Feeds {
		g.Go(func() error {
			b, err := p.getFeed(gctx, feed)
			if err != nil {
				p.log.Warn("proxy feed failed", zap.String("feed", feed), zap.Error(err))
				errs[i] = err
				return nil
			}
			bodies[i] = b
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if len(p.cfg.Feeds) > 0 && failed == len(p.cfg.Feeds) {
		return nil, errs[0]
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := map[string]bool{}
	var out []Proxy
	for _, body := range bodies {
		for _, c := range parseFeed(body) {
			addr := c.Addr()
			if seen[addr] || p.blacklist[addr] {
				continue
			}
			if _, pooled := p.proxies[c.URL()]; pooled {
				continue
			}
			seen[addr] = true
			out = append(out, c)
			if len(out) >= p.cfg.MaxCandidates {
				return out, nil
			}
		}
	}
	return out, nil
}

func (p *Pool) getFeed(ctx context.Context, feed string) (string, error) {
	if err := p.limiter.WaitURL(ctx, feed); err != nil {
		return "", err
	}
	b, err := get(ctx, p.hc, feed)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
