package httpapi

import (
	"net/http"
	"time"

	"jobscout-engine/internal/proxy"
	"jobscout-engine/internal/scrape"
)

type HealthHandler struct {
	Started  time.Time
	Registry *scrape.Registry
	Proxies  *proxy.Pool
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Time    string `json:"time"`
	UptimeS int64  `json:"uptime_s"`
	Sources int    `json:"sources"`
	Proxies *int   `json:"healthy_proxies,omitempty"`
}

// Health always answers 200 while the process serves. Status turns
// "degraded" when nothing can be searched or a refreshed proxy pool has no
// healthy entry left.
func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	resp := healthResponse{
		OK:      true,
		Status:  "ok",
		Time:    now.UTC().Format(time.RFC3339),
		UptimeS: int64(now.Sub(h.Started).Seconds()),
	}
	if h.Registry != nil {
		resp.Sources = len(h.Registry.Names())
	}
	if resp.Sources == 0 {
		resp.Status = "degraded"
	}
	if h.Proxies != nil {
		st := h.Proxies.Stats()
		resp.Proxies = &st.Healthy
		if st.Healthy == 0 && !st.LastRefresh.IsZero() {
			resp.Status = "degraded"
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
