package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobscout-engine/internal/domain"
)

// StreamSummary is sent once every source has finished.
type StreamSummary struct {
	RunID            string                 `json:"run_id"`
	TotalFound       int                    `json:"total_found"`
	SourcesSucceeded []string               `json:"sources_succeeded"`
	SourcesFailed    []string               `json:"sources_failed"`
	SourcesPartial   []string               `json:"sources_partial"`
	Outcomes         []domain.SourceOutcome `json:"outcomes"`
	DurationMS       int64                  `json:"duration_ms"`
}

// Stream is the incremental variant of Search. Jobs are delivered as sources
// produce them, deduplicated by fingerprint across sources, in no particular
// order. The jobs channel closes once every source is done, after which one
// summary is sent. Cancelling ctx stops all sources. Streams bypass the
// cache.
func (o *Orchestrator) Stream(ctx context.Context, q domain.Query) (<-chan domain.Job, <-chan StreamSummary) {
	q = q.Normalized()
	jobs := make(chan domain.Job, 32)
	summary := make(chan StreamSummary, 1)

	go func() {
		defer close(summary)
		start := o.now()
		runID := uuid.NewString()
		names := o.plan(q.Sources)
		o.log.Info("stream started", zap.String("run_id", runID), zap.Strings("sources", names))

		var (
			mu   sync.Mutex
			seen = map[string]bool{}
			sent int
		)
		emit := func(j domain.Job) bool {
			fp := j.Fingerprint()
			mu.Lock()
			if seen[fp] {
				mu.Unlock()
				return true
			}
			seen[fp] = true
			mu.Unlock()

			select {
			case jobs <- j:
				mu.Lock()
				sent++
				mu.Unlock()
				return true
			case <-ctx.Done():
				return false
			}
		}

		outcomes := o.runAll(ctx, runID, names, q, emit)
		close(jobs)

		s := StreamSummary{
			RunID:      runID,
			DurationMS: o.now().Sub(start).Milliseconds(),
		}
		s.SourcesSucceeded, s.SourcesPartial, s.SourcesFailed = bucket(outcomes)
		for _, out := range outcomes {
			s.Outcomes = append(s.Outcomes, *out)
		}
		mu.Lock()
		s.TotalFound = sent
		mu.Unlock()

		o.log.Info("stream finished", zap.String("run_id", runID), zap.Int("jobs", sent), zap.Int64("duration_ms", s.DurationMS))
		summary <- s
	}()

	return jobs, summary
}
