// Package orchestrator fans a search out to many sources with bounded
// parallelism, retries and timeouts, and merges what comes back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobscout-engine/internal/cache"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
)

type Config struct {
	MaxParallel      int
	PerSourceTimeout time.Duration
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxJobsPerSource int
	Priorities       map[string]int
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxJobsPerSource <= 0 {
		c.MaxJobsPerSource = 50
	}
	return c
}

// Instrument observes source lifecycles. Hooks are called from the
// goroutine running the source and must be safe for concurrent use.
type Instrument struct {
	OnSourceStart func(source string)
	OnSourceDone  func(outcome domain.SourceOutcome)
}

type Orchestrator struct {
	cfg   Config
	reg   *scrape.Registry
	deps  scrape.Deps
	cache *cache.Cache
	inst  Instrument
	log   *zap.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(upTo time.Duration) time.Duration
}

type Option func(*Orchestrator)

// WithCache enables result caching. Without it every search fans out.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func WithInstrument(i Instrument) Option {
	return func(o *Orchestrator) { o.inst = i }
}

func New(cfg Config, reg *scrape.Registry, deps scrape.Deps, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		reg:    reg,
		deps:   deps,
		log:    log.Named("orchestrator"),
		now:    time.Now,
		sleep:  sleepCtx,
		jitter: randomJitter,
	}
	if o.deps.Log == nil {
		o.deps.Log = log
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs q against the selected sources and returns the merged result.
// Individual source failures are reported in the result, never as an error;
// only cancellation of ctx is.
func (o *Orchestrator) Search(ctx context.Context, q domain.Query) (*domain.OrchestrationResult, error) {
	q = q.Normalized()
	start := o.now()
	key := o.CacheKey(q)

	if o.cache != nil && !q.ForceRefresh {
		if hit, ok := o.cache.Get(ctx, key); ok {
			res := *hit
			res.Cached = true
			res.CacheKey = key
			res.Jobs = limit(res.Jobs, q.MaxResults)
			o.log.Info("served from cache", zap.String("key", key), zap.Int("jobs", len(res.Jobs)))
			return &res, nil
		}
	}

	runID := uuid.NewString()
	names := o.plan(q.Sources)
	o.log.Info("search started",
		zap.String("run_id", runID),
		zap.Strings("keywords", q.Keywords),
		zap.String("location", q.Location),
		zap.Strings("sources", names))

	outcomes := o.runAll(ctx, runID, names, q, nil)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	res := summarize(outcomes)
	res.RunID = runID
	res.CacheKey = key
	res.DurationMS = o.now().Sub(start).Milliseconds()

	o.log.Info("search finished",
		zap.String("run_id", runID),
		zap.Int("jobs", res.TotalFound),
		zap.Strings("succeeded", res.SourcesSucceeded),
		zap.Strings("partial", res.SourcesPartial),
		zap.Strings("failed", res.SourcesFailed),
		zap.Int64("duration_ms", res.DurationMS))

	// an all-failed run must not be remembered as "no jobs"
	if o.cache != nil && len(res.Jobs) > 0 {
		o.cache.Set(ctx, key, res)
	}

	out := *res
	out.Jobs = limit(res.Jobs, q.MaxResults)
	return &out, nil
}

// CacheKey is the result-cache key for q. An explicit source subset is part
// of the key so it never serves a result gathered from other sources.
func (o *Orchestrator) CacheKey(q domain.Query) string {
	filters := q.Filters
	if len(q.Sources) > 0 {
		srcs := slices.Clone(q.Sources)
		slices.Sort(srcs)
		filters = make(map[string]string, len(q.Filters)+1)
		for k, v := range q.Filters {
			filters[k] = v
		}
		filters["_sources"] = strings.Join(slices.Compact(srcs), ",")
	}
	return cache.Key(q.Keywords, q.Location, filters)
}

// plan resolves the requested sources and orders them by priority.
func (o *Orchestrator) plan(requested []string) []string {
	known, unknown := o.reg.Resolve(requested)
	if len(unknown) > 0 {
		o.log.Warn("skipping unknown sources", zap.Strings("sources", unknown))
	}
	sortByPriority(known, o.cfg.Priorities)
	return known
}

// runAll drives every source with at most MaxParallel running at once and
// returns their outcomes in plan order. emit, when set, sees every job as it
// is produced and may stop the source by returning false.
func (o *Orchestrator) runAll(ctx context.Context, runID string, names []string, q domain.Query, emit func(domain.Job) bool) []*domain.SourceOutcome {
	outcomes := make([]*domain.SourceOutcome, len(names))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)
	for i, name := range names {
		out := &domain.SourceOutcome{Source: name, Status: domain.StatusPending}
		outcomes[i] = out
		g.Go(func() error {
			o.runSource(ctx, runID, out, q, emit)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) runSource(ctx context.Context, runID string, out *domain.SourceOutcome, q domain.Query, emit func(domain.Job) bool) {
	start := o.now()
	log := o.log.With(zap.String("run_id", runID), zap.String("source", out.Source))

	out.Status = domain.StatusRunning
	if o.inst.OnSourceStart != nil {
		o.inst.OnSourceStart(out.Source)
	}
	defer func() {
		out.DurationMS = o.now().Sub(start).Milliseconds()
		fields := []zap.Field{
			zap.String("status", string(out.Status)),
			zap.Int("jobs", len(out.Jobs)),
			zap.Int("attempts", out.Attempts),
			zap.Int64("duration_ms", out.DurationMS),
		}
		if out.Err != nil {
			log.Warn("source finished", append(fields, zap.Error(out.Err))...)
		} else {
			log.Info("source finished", fields...)
		}
		if o.inst.OnSourceDone != nil {
			o.inst.OnSourceDone(*out)
		}
	}()

	deps := o.deps
	deps.Log = o.deps.Log.With(zap.String("run_id", runID))
	src, err := o.reg.New(out.Source, deps)
	if err != nil {
		out.Fail(domain.StatusFailed, err)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.PerSourceTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		jobs, err := o.drain(sctx, src, q, emit)
		if len(jobs) > 0 || attempt == 1 {
			out.Jobs = jobs
		}
		lastErr = err
		if err == nil {
			break
		}
		// progress already made is kept rather than re-fetched
		if len(jobs) > 0 || scrape.IsPermanent(err) || sctx.Err() != nil || attempt >= o.cfg.MaxRetries {
			break
		}

		wait := o.backoff(attempt)
		log.Debug("retrying source", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if err := o.sleep(sctx, wait); err != nil {
			break
		}
	}

	o.classify(out, lastErr, sctx, ctx)
}

// classify sets the terminal status of out.
func (o *Orchestrator) classify(out *domain.SourceOutcome, err error, sctx, parent context.Context) {
	timedOut := err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
	if timedOut {
		err = fmt.Errorf("timed out after %s: %w", o.cfg.PerSourceTimeout, context.DeadlineExceeded)
	}

	switch {
	case err == nil && len(out.Jobs) > 0:
		out.Status = domain.StatusSuccess
	case err == nil:
		// ran cleanly but found nothing
		out.Status = domain.StatusPartial
	case len(out.Jobs) > 0:
		out.Fail(domain.StatusPartial, err)
	case timedOut:
		out.Fail(domain.StatusTimeout, err)
	default:
		out.Fail(domain.StatusFailed, err)
	}
}

// drain consumes one Search attempt, stopping at MaxJobsPerSource.
func (o *Orchestrator) drain(ctx context.Context, src scrape.Source, q domain.Query, emit func(domain.Job) bool) ([]domain.Job, error) {
	var jobs []domain.Job
	for j, err := range src.Search(ctx, q) {
		if err != nil {
			return jobs, err
		}
		if j.Source == "" {
			j.Source = src.Name()
		}
		if err := j.Validate(); err != nil {
			o.log.Debug("dropping invalid job", zap.String("source", src.Name()), zap.String("url", j.URL), zap.Error(err))
			continue
		}
		jobs = append(jobs, j)
		if emit != nil && !emit(j) {
			return jobs, ctx.Err()
		}
		if len(jobs) >= o.cfg.MaxJobsPerSource {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return jobs, err
	}
	return jobs, nil
}

// backoff is 2^(attempt-1) * BaseBackoff plus up to one BaseBackoff of
// jitter.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.BaseBackoff << (attempt - 1)
	return d + o.jitter(o.cfg.BaseBackoff)
}

func randomJitter(upTo time.Duration) time.Duration {
	if upTo <= 0 {
		return 0
	}
	return rand.N(upTo)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// summarize buckets outcomes by status and merges their jobs in plan order.
func summarize(outcomes []*domain.SourceOutcome) *domain.OrchestrationResult {
	res := &domain.OrchestrationResult{}
	res.SourcesSucceeded, res.SourcesPartial, res.SourcesFailed = bucket(outcomes)

	var all []domain.Job
	for _, out := range outcomes {
		all = append(all, out.Jobs...)
	}
	res.Jobs = Merge(all)
	res.TotalFound = len(res.Jobs)
	return res
}

// bucket splits source names by terminal status. Timeouts count as failed.
func bucket(outcomes []*domain.SourceOutcome) (succeeded, partial, failed []string) {
	succeeded, partial, failed = []string{}, []string{}, []string{}
	for _, out := range outcomes {
		switch out.Status {
		case domain.StatusSuccess:
			succeeded = append(succeeded, out.Source)
		case domain.StatusPartial:
			partial = append(partial, out.Source)
		default:
			failed = append(failed, out.Source)
		}
	}
	return succeeded, partial, failed
}
