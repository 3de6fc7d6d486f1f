package httpapi

import (
	"net/http"
	"time"

	"jobscout-engine/internal/logging"
)

// NewMux registers every route on a fresh mux.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	log := logging.OrNop(d.Log).Named("http")

	hh := HealthHandler{Started: time.Now(), Registry: d.Registry, Proxies: d.Proxies}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Search
	sh := NewSearchHandler(d.Search, d.Hub, log)
	mux.HandleFunc("/search", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Search,
	}))
	mux.HandleFunc("/search/stream", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Stream,
	}))
	mux.HandleFunc("/search/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))

	ch := CacheHandler{Cache: d.Cache, Hub: d.Hub}
	mux.HandleFunc("/cache", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: ch.Clear,
	}))

	ph := PoolsHandler{Browser: d.Browser, Proxies: d.Proxies}
	mux.HandleFunc("/pools", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Stats,
	}))

	srch := SourcesHandler{Registry: d.Registry, Priorities: d.Priorities}
	mux.HandleFunc("/sources", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: srch.List,
	}))

	// SSE progress events
	if d.Hub != nil {
		eh := EventsHandler{Hub: d.Hub}
		mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
			http.MethodGet: eh.ServeSSE,
		}))
	}

	if d.ShutdownToken != "" && d.Shutdown != nil {
		sdh := ShutdownHandler{Token: d.ShutdownToken, Stop: d.Shutdown}
		mux.HandleFunc("/shutdown", methodMux(map[string]http.HandlerFunc{
			http.MethodPost: sdh.Shutdown,
		}))
	}

	return mux
}

// NewHandler is NewMux behind the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	log := logging.OrNop(d.Log).Named("http")
	return Chain(NewMux(d), RequestID, Recover(log), AccessLog(log), Cors(d.CORSOrigins))
}
