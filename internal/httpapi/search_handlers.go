package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
)

type SearchHandler struct {
	Searcher Searcher
	Hub      *events.Hub
	Log      *zap.Logger

	status *statusBoard
}

func NewSearchHandler(s Searcher, hub *events.Hub, log *zap.Logger) SearchHandler {
	return SearchHandler{Searcher: s, Hub: hub, Log: log, status: &statusBoard{}}
}

// Search runs a blocking search and returns the merged result.
func (h SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeRequestError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeRequestError(w, r, err)
		return
	}

	q := req.Query()
	reqID := RequestIDFrom(r.Context())
	h.publish(reqID, events.TypeSearchStarted, queryFields(q))

	h.status.begin()
	res, err := h.Searcher.Search(r.Context(), q)
	h.status.end(res, err)
	if err != nil {
		h.Log.Warn("search aborted", zap.String("request_id", reqID), zap.Error(err))
		writeSearchError(w, r, err)
		return
	}

	h.publish(reqID, events.TypeSearchFinished, map[string]any{
		"run_id":         res.RunID,
		"total_found":    res.TotalFound,
		"cached":         res.Cached,
		"sources_failed": res.SourcesFailed,
	})
	WriteJSON(w, http.StatusOK, res)
}

// Stream runs a search and relays jobs as server-sent "job" events followed
// by one "summary" event. max_results stops the search once reached.
func (h SearchHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, err := queryFromValues(r.URL.Query())
	if err != nil {
		writeRequestError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeRequestError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, codeStreamUnsupported, "streaming unsupported")
		return
	}

	q := req.Query()
	reqID := RequestIDFrom(r.Context())
	h.publish(reqID, events.TypeSearchStarted, queryFields(q))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.status.begin()
	jobs, summary := h.Searcher.Stream(ctx, q)
	sent := 0
	for j := range jobs {
		if q.MaxResults > 0 && sent >= q.MaxResults {
			cancel()
			continue
		}
		if err := writeSSE(w, "job", j); err != nil {
			cancel()
			continue
		}
		flusher.Flush()
		sent++
	}

	s, ok := <-summary
	if !ok {
		h.status.end(nil, ctx.Err())
		return
	}
	h.status.end(&domain.OrchestrationResult{RunID: s.RunID, TotalFound: s.TotalFound}, nil)
	h.publish(reqID, events.TypeSearchFinished, map[string]any{
		"run_id":         s.RunID,
		"total_found":    s.TotalFound,
		"sources_failed": s.SourcesFailed,
	})
	if r.Context().Err() != nil {
		return
	}
	_ = writeSSE(w, "summary", s)
	flusher.Flush()
}

func (h SearchHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.status.snapshot())
}

func (h SearchHandler) publish(reqID, typ string, data any) {
	h.Hub.Emit(reqID, typ, data)
}

// statusBoard tracks in-flight searches and the last completed one.
type statusBoard struct {
	mu sync.Mutex
	st SearchStatus
}

func (b *statusBoard) begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.Running++
	b.st.LastRunAt = time.Now().Format(time.RFC3339)
}

func (b *statusBoard) end(res *domain.OrchestrationResult, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.Running--
	if err != nil {
		b.st.LastError = err.Error()
		return
	}
	b.st.LastError = ""
	b.st.LastOkAt = time.Now().Format(time.RFC3339)
	if res != nil {
		b.st.LastRunID = res.RunID
		b.st.LastFound = res.TotalFound
		b.st.LastCached = res.Cached
	}
}

func (b *statusBoard) snapshot() SearchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}
