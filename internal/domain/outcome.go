package domain

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// SourceOutcome is the per-source record of one orchestration run. Only the
// goroutine driving the source writes to it.
type SourceOutcome struct {
	Source     string `json:"source"`
	Status     Status `json:"status"`
	Jobs       []Job  `json:"-"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}

// Fail records err as the terminal error of the outcome.
func (o *SourceOutcome) Fail(status Status, err error) {
	o.Status = status
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	}
}

// OrchestrationResult is the aggregate returned to callers and stored in the
// result cache. Treat it as immutable once built.
type OrchestrationResult struct {
	RunID            string   `json:"run_id"`
	Jobs             []Job    `json:"jobs"`
	TotalFound       int      `json:"total_found"`
	SourcesSucceeded []string `json:"sources_succeeded"`
	SourcesFailed    []string `json:"sources_failed"`
	SourcesPartial   []string `json:"sources_partial"`
	DurationMS       int64    `json:"duration_ms"`
	Cached           bool     `json:"cached"`
	CacheKey         string   `json:"cache_key,omitempty"`
}
