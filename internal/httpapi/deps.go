package httpapi

import (
	"context"

	"go.uber.org/zap"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/cache"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/orchestrator"
	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scrape"
)

// Searcher is the part of the orchestrator the HTTP layer drives.
type Searcher interface {
	Search(ctx context.Context, q domain.Query) (*domain.OrchestrationResult, error)
	Stream(ctx context.Context, q domain.Query) (<-chan domain.Job, <-chan orchestrator.StreamSummary)
}

type Deps struct {
	Search     Searcher
	Registry   *scrape.Registry
	Priorities map[string]int

	// Optional; nil means the feature is turned off.
	Cache   *cache.Cache
	Browser *browser.Pool
	Proxies *proxy.Pool

	Hub *events.Hub
	Log *zap.Logger

	// CORSOrigins lists browser origins allowed to call the API; empty
	// admits loopback origins only.
	CORSOrigins []string

	// ShutdownToken guards POST /shutdown; empty disables the route.
	ShutdownToken string
	Shutdown      func()
}
