package httpapi

import (
	"net/http"

	"jobscout-engine/internal/cache"
	"jobscout-engine/internal/events"
)

type CacheHandler struct {
	Cache *cache.Cache
	Hub   *events.Hub
}

// Clear drops one entry when ?key= is given, otherwise every entry.
func (h CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if h.Cache == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "cleared": false})
		return
	}

	var err error
	if key != "" {
		err = h.Cache.Invalidate(r.Context(), key)
	} else {
		err = h.Cache.ClearAll(r.Context())
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, codeCacheError, err.Error())
		return
	}

	h.Hub.Emit(RequestIDFrom(r.Context()), events.TypeCacheCleared, map[string]any{"key": key})
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "cleared": true, "key": key})
}
