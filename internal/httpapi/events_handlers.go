package httpapi

import (
	"net/http"
	"time"

	"jobscout-engine/internal/events"
)

const keepAliveInterval = 25 * time.Second

type EventsHandler struct {
	Hub *events.Hub
}

// ServeSSE relays hub events until the client goes away. ?types=a,b limits
// the stream to those event types. Each event is named after its type.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, codeStreamUnsupported, "streaming unsupported")
		return
	}
	setSSEHeaders(w)

	sub := h.Hub.Subscribe(splitList(r.URL.Query()["types"])...)
	defer h.Hub.Unsubscribe(sub)

	if writeSSE(w, events.TypePing, events.New(RequestIDFrom(r.Context()), events.TypePing, nil)) != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			// comment lines keep idle proxies from closing the stream
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if writeSSE(w, e.Type, e) != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
