package httpapi

import (
	"net/http"

	"jobscout-engine/internal/orchestrator"
	"jobscout-engine/internal/scrape"
)

type SourcesHandler struct {
	Registry   *scrape.Registry
	Priorities map[string]int
}

// List returns the registered sources in the order a search starts them.
func (h SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	out := []SourceInfo{}
	if h.Registry != nil {
		for _, name := range orchestrator.Ordered(h.Registry.Names(), h.Priorities) {
			out = append(out, SourceInfo{Name: name, Priority: orchestrator.Priority(name, h.Priorities)})
		}
	}
	WriteJSON(w, http.StatusOK, out)
}
