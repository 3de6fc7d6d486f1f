package httpapi

import (
	"net/http"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/proxy"
)

type PoolsHandler struct {
	Browser *browser.Pool
	Proxies *proxy.Pool
}

func (h PoolsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp PoolsResponse
	if h.Browser != nil {
		s := h.Browser.Stats()
		resp.Browser = &s
	}
	if h.Proxies != nil {
		s := h.Proxies.Stats()
		resp.Proxy = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}
