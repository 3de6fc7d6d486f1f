package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/cache"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
)

// fakeSource yields jobs, then err if set. failFirst makes the first n
// attempts fail with err before any job. hang blocks until ctx is done once
// the jobs are out.
type fakeSource struct {
	name      string
	jobs      []domain.Job
	err       error
	failFirst int32
	delay     time.Duration
	hang      bool
	calls     atomic.Int32
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) BaseURL() string { return "https://" + f.name + ".example" }

func (f *fakeSource) FetchDetails(context.Context, string) (*domain.Job, error) { return nil, nil }

func (f *fakeSource) Search(ctx context.Context, _ domain.Query) iter.Seq2[domain.Job, error] {
	return func(yield func(domain.Job, error) bool) {
		n := f.calls.Add(1)
		if n <= f.failFirst {
			yield(domain.Job{}, f.err)
			return
		}
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				yield(domain.Job{}, ctx.Err())
				return
			}
		}
		for _, j := range f.jobs {
			if err := ctx.Err(); err != nil {
				yield(domain.Job{}, err)
				return
			}
			if !yield(j, nil) {
				return
			}
		}
		if f.hang {
			<-ctx.Done()
			yield(domain.Job{}, ctx.Err())
			return
		}
		if f.err != nil && f.failFirst == 0 {
			yield(domain.Job{}, f.err)
		}
	}
}

func makeJobs(prefix string, n int) []domain.Job {
	out := make([]domain.Job, n)
	for i := range n {
		out[i] = domain.Job{
			URL:         fmt.Sprintf("https://%s.example/jobs/%d", prefix, i),
			Title:       fmt.Sprintf("%s engineer %d", prefix, i),
			CompanyName: "Acme",
			Description: "build things",
			Location:    "Remote",
		}
	}
	return out
}

type harness struct {
	reg    *scrape.Registry
	orch   *Orchestrator
	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T, cfg Config, srcs []*fakeSource, opts ...Option) *harness {
	t.Helper()
	h := &harness{reg: scrape.NewRegistry()}
	for _, s := range srcs {
		require.NoError(t, h.reg.Register(s.name, func(scrape.Deps) (scrape.Source, error) { return s, nil }))
	}
	h.orch = New(cfg, h.reg, scrape.Deps{}, nil, opts...)
	h.orch.jitter = func(time.Duration) time.Duration { return 0 }
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func outcomeOf(t *testing.T, outs []domain.SourceOutcome, name string) domain.SourceOutcome {
	t.Helper()
	for _, o := range outs {
		if o.Source == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s", name)
	return domain.SourceOutcome{}
}

// recorder collects outcomes through the instrument hooks.
type recorder struct {
	mu      sync.Mutex
	started []string
	done    []domain.SourceOutcome
	running int
	peak    int
}

func (r *recorder) instrument() Instrument {
	return Instrument{
		OnSourceStart: func(name string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.started = append(r.started, name)
			r.running++
			r.peak = max(r.peak, r.running)
		},
		OnSourceDone: func(o domain.SourceOutcome) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.running--
			r.done = append(r.done, o)
		},
	}
}

func TestMerge_DedupesAndSortsNewestFirst(t *testing.T) {
	day := func(d int) *time.Time {
		ts := time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}
	jobs := []domain.Job{
		{Title: "Old", CompanyName: "Acme", PostedDate: day(1)},
		{Title: "Undated A", CompanyName: "Acme"},
		{Title: "New", CompanyName: "Acme", PostedDate: day(9)},
		{Title: "  new ", CompanyName: "ACME", URL: "https://elsewhere.example/1"},
		{Title: "Undated B", CompanyName: "Acme"},
		{Title: "Mid", CompanyName: "Acme", PostedDate: day(5)},
	}

	merged := Merge(jobs)
	var titles []string
	for _, j := range merged {
		titles = append(titles, j.Title)
	}
	assert.Equal(t, []string{"New", "Mid", "Old", "Undated A", "Undated B"}, titles)
	assert.Equal(t, merged, Merge(merged))
}

func TestLimit(t *testing.T) {
	jobs := makeJobs("x", 5)
	assert.Len(t, limit(jobs, 0), 5)
	assert.Len(t, limit(jobs, 2), 2)
	assert.Len(t, limit(jobs, 10), 5)
}

func TestSortByPriority(t *testing.T) {
	names := []string{"builtin", "zeta", "lever", "remoteok", "alpha"}
	sortByPriority(names, nil)
	assert.Equal(t, []string{"remoteok", "lever", "builtin", "alpha", "zeta"}, names)

	sortByPriority(names, map[string]int{"zeta": 1000})
	assert.Equal(t, "zeta", names[0])
}

func TestBackoffDoublesFromBase(t *testing.T) {
	h := newHarness(t, Config{BaseBackoff: time.Second}, nil)
	assert.Equal(t, time.Second, h.orch.backoff(1))
	assert.Equal(t, 2*time.Second, h.orch.backoff(2))
	assert.Equal(t, 4*time.Second, h.orch.backoff(3))

	for range 100 {
		j := randomJitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
	assert.Zero(t, randomJitter(0))
}

func TestSearch_MixedOutcomes(t *testing.T) {
	a := &fakeSource{name: "a", jobs: makeJobs("a", 10)}
	b := &fakeSource{name: "b", hang: true}
	cJobs := makeJobs("c", 1)
	dup := a.jobs[0]
	dup.URL = "https://c.example/mirror/0"
	cJobs = append(cJobs, dup)
	c := &fakeSource{name: "c", jobs: cJobs}

	h := newHarness(t, Config{PerSourceTimeout: 200 * time.Millisecond}, []*fakeSource{a, b, c})
	res, err := h.orch.Search(context.Background(), domain.Query{Keywords: []string{"backend engineer"}, Location: "remote"})
	require.NoError(t, err)

	assert.Equal(t, 11, res.TotalFound)
	assert.Len(t, res.Jobs, 11)
	assert.Equal(t, []string{"a", "c"}, res.SourcesSucceeded)
	assert.Equal(t, []string{"b"}, res.SourcesFailed)
	assert.Empty(t, res.SourcesPartial)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Cached)

	// the first occurrence in plan order wins
	for _, j := range res.Jobs {
		assert.NotEqual(t, "https://c.example/mirror/0", j.URL)
		assert.NotEmpty(t, j.Source)
	}
}

func TestSearch_TimeoutStatus(t *testing.T) {
	r := &recorder{}
	b := &fakeSource{name: "b", hang: true}
	h := newHarness(t, Config{PerSourceTimeout: 50 * time.Millisecond}, []*fakeSource{b}, WithInstrument(r.instrument()))

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.SourcesFailed)

	out := outcomeOf(t, r.done, "b")
	assert.Equal(t, domain.StatusTimeout, out.Status)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, out.Attempts)
}

func TestSearch_PartialCredit(t *testing.T) {
	r := &recorder{}
	src := &fakeSource{name: "flaky", jobs: makeJobs("f", 3), err: errors.New("connection reset")}
	h := newHarness(t, Config{}, []*fakeSource{src}, WithInstrument(r.instrument()))

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"flaky"}, res.SourcesPartial)
	assert.Len(t, res.Jobs, 3)

	out := outcomeOf(t, r.done, "flaky")
	assert.Equal(t, domain.StatusPartial, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Contains(t, out.Error, "connection reset")
	assert.EqualValues(t, 1, src.calls.Load())
	assert.Empty(t, h.sleeps)
}

func TestSearch_HangAfterJobsIsPartial(t *testing.T) {
	src := &fakeSource{name: "slow", jobs: makeJobs("s", 2), hang: true}
	h := newHarness(t, Config{PerSourceTimeout: 50 * time.Millisecond}, []*fakeSource{src})

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"slow"}, res.SourcesPartial)
	assert.Len(t, res.Jobs, 2)
}

func TestSearch_EmptySourceIsPartial(t *testing.T) {
	src := &fakeSource{name: "quiet"}
	h := newHarness(t, Config{}, []*fakeSource{src})

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet"}, res.SourcesPartial)
	assert.Empty(t, res.Jobs)
	assert.NotNil(t, res.Jobs)
}

func TestSearch_RetriesTransientErrors(t *testing.T) {
	r := &recorder{}
	src := &fakeSource{
		name:      "retry",
		jobs:      makeJobs("r", 2),
		err:       &scrape.SourceError{Source: "retry", Op: "get", Status: 503},
		failFirst: 2,
	}
	h := newHarness(t, Config{MaxRetries: 3, BaseBackoff: time.Second}, []*fakeSource{src}, WithInstrument(r.instrument()))

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"retry"}, res.SourcesSucceeded)

	out := outcomeOf(t, r.done, "retry")
	assert.Equal(t, 3, out.Attempts)
	assert.Empty(t, out.Error)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
}

func TestSearch_RetriesExhausted(t *testing.T) {
	r := &recorder{}
	src := &fakeSource{name: "down", err: errors.New("dial tcp: refused"), failFirst: 100}
	h := newHarness(t, Config{MaxRetries: 3}, []*fakeSource{src}, WithInstrument(r.instrument()))

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, res.SourcesFailed)

	out := outcomeOf(t, r.done, "down")
	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.EqualValues(t, 3, src.calls.Load())
	assert.Len(t, h.sleeps, 2)
}

func TestSearch_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", scrape.Permanent(errors.New("bad request"))},
		{"unsupported", fmt.Errorf("%w: no browser", scrape.ErrUnsupported)},
		{"client status", scrape.CheckStatus("src", "get", 403)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			src := &fakeSource{name: "src", err: tt.err, failFirst: 100}
			h := newHarness(t, Config{MaxRetries: 3}, []*fakeSource{src}, WithInstrument(r.instrument()))

			_, err := h.orch.Search(context.Background(), domain.Query{})
			require.NoError(t, err)

			out := outcomeOf(t, r.done, "src")
			assert.Equal(t, domain.StatusFailed, out.Status)
			assert.Equal(t, 1, out.Attempts)
			assert.EqualValues(t, 1, src.calls.Load())
			assert.Empty(t, h.sleeps)
		})
	}
}

func TestSearch_ConstructorFailure(t *testing.T) {
	r := &recorder{}
	reg := scrape.NewRegistry()
	require.NoError(t, reg.Register("broken", func(scrape.Deps) (scrape.Source, error) {
		return nil, fmt.Errorf("%w: missing board list", scrape.ErrUnsupported)
	}))
	o := New(Config{}, reg, scrape.Deps{}, nil, WithInstrument(r.instrument()))

	res, err := o.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, res.SourcesFailed)

	out := outcomeOf(t, r.done, "broken")
	assert.Equal(t, 0, out.Attempts)
	assert.Contains(t, out.Error, "missing board list")
}

func TestSearch_BoundsConcurrency(t *testing.T) {
	r := &recorder{}
	var srcs []*fakeSource
	for i := range 5 {
		srcs = append(srcs, &fakeSource{
			name:  fmt.Sprintf("s%d", i),
			jobs:  makeJobs(fmt.Sprintf("s%d", i), 1),
			delay: 100 * time.Millisecond,
		})
	}
	h := newHarness(t, Config{MaxParallel: 2}, srcs, WithInstrument(r.instrument()))

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Len(t, res.SourcesSucceeded, 5)
	assert.Equal(t, 5, res.TotalFound)
	assert.LessOrEqual(t, r.peak, 2)
	assert.Len(t, r.done, 5)
}

func TestSearch_StartsSourcesInPriorityOrder(t *testing.T) {
	r := &recorder{}
	srcs := []*fakeSource{
		{name: "builtin", jobs: makeJobs("b", 1)},
		{name: "remoteok", jobs: makeJobs("r", 1)},
		{name: "lever", jobs: makeJobs("l", 1)},
	}
	h := newHarness(t, Config{MaxParallel: 1}, srcs, WithInstrument(r.instrument()))

	_, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"remoteok", "lever", "builtin"}, r.started)
}

func TestSearch_UnknownSourcesAreSkipped(t *testing.T) {
	a := &fakeSource{name: "a", jobs: makeJobs("a", 1)}
	b := &fakeSource{name: "b", jobs: makeJobs("b", 1)}
	h := newHarness(t, Config{}, []*fakeSource{a, b})

	res, err := h.orch.Search(context.Background(), domain.Query{Sources: []string{" A ", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.SourcesSucceeded)
	assert.Empty(t, res.SourcesFailed)
	assert.Zero(t, b.calls.Load())
}

func TestSearch_CapsJobsPerSource(t *testing.T) {
	src := &fakeSource{name: "big", jobs: makeJobs("big", 60)}
	h := newHarness(t, Config{MaxJobsPerSource: 50}, []*fakeSource{src})

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, 50, res.TotalFound)
	assert.Equal(t, []string{"big"}, res.SourcesSucceeded)
}

func TestSearch_DropsInvalidJobs(t *testing.T) {
	jobs := makeJobs("v", 2)
	jobs = append(jobs,
		domain.Job{URL: "https://v.example/x", CompanyName: "Acme"},
		domain.Job{URL: "https://v.example/y", Title: "SRE", CompanyName: "Acme"},
	)
	src := &fakeSource{name: "v", jobs: jobs}
	h := newHarness(t, Config{}, []*fakeSource{src})

	res, err := h.orch.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFound)
	for _, j := range res.Jobs {
		assert.Equal(t, "v", j.Source)
	}
}

func TestSearch_MaxResultsTruncatesOutput(t *testing.T) {
	src := &fakeSource{name: "a", jobs: makeJobs("a", 3)}
	h := newHarness(t, Config{}, []*fakeSource{src})

	res, err := h.orch.Search(context.Background(), domain.Query{MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 2)
	assert.Equal(t, 3, res.TotalFound)
}

func TestSearch_Cancelled(t *testing.T) {
	src := &fakeSource{name: "hang", hang: true}
	h := newHarness(t, Config{PerSourceTimeout: time.Minute}, []*fakeSource{src})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := h.orch.Search(ctx, domain.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSearch_CacheWriteThrough(t *testing.T) {
	c := cache.New(cache.NewMemory(), time.Hour, nil)
	src := &fakeSource{name: "a", jobs: makeJobs("a", 3)}
	h := newHarness(t, Config{}, []*fakeSource{src}, WithCache(c))
	q := domain.Query{Keywords: []string{"go"}, Location: "Remote"}

	first, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := h.orch.Search(context.Background(), domain.Query{Keywords: []string{"GO"}, Location: "remote", MaxResults: 1})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Len(t, second.Jobs, 1)
	assert.Equal(t, 3, second.TotalFound)
	assert.Equal(t, first.RunID, second.RunID)
	assert.EqualValues(t, 1, src.calls.Load())

	q.ForceRefresh = true
	third, err := h.orch.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestSearch_EmptyResultsAreNotCached(t *testing.T) {
	c := cache.New(cache.NewMemory(), time.Hour, nil)
	src := &fakeSource{name: "down", err: scrape.Permanent(errors.New("gone")), failFirst: 100}
	h := newHarness(t, Config{}, []*fakeSource{src}, WithCache(c))
	q := domain.Query{Keywords: []string{"go"}}

	for range 2 {
		res, err := h.orch.Search(context.Background(), q)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCacheKey_IncludesSourceSubset(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	base := domain.Query{Keywords: []string{"go"}, Location: "remote"}

	all := h.orch.CacheKey(base)
	one := h.orch.CacheKey(domain.Query{Keywords: base.Keywords, Location: base.Location, Sources: []string{"lever", "remoteok"}})
	swapped := h.orch.CacheKey(domain.Query{Keywords: base.Keywords, Location: base.Location, Sources: []string{"remoteok", "lever"}})

	assert.NotEqual(t, all, one)
	assert.Equal(t, one, swapped)
	assert.Equal(t, cache.Key(base.Keywords, base.Location, nil), all)
}

func TestStream_DeliversDedupedJobsAndSummary(t *testing.T) {
	a := &fakeSource{name: "a", jobs: makeJobs("a", 3)}
	cJobs := append(makeJobs("c", 1), a.jobs[1])
	c := &fakeSource{name: "c", jobs: cJobs}
	d := &fakeSource{name: "d", err: scrape.Permanent(errors.New("nope")), failFirst: 100}
	h := newHarness(t, Config{}, []*fakeSource{a, c, d})

	jobs, summary := h.orch.Stream(context.Background(), domain.Query{})

	seen := map[string]bool{}
	for j := range jobs {
		assert.False(t, seen[j.Fingerprint()], "duplicate %s", j.Title)
		seen[j.Fingerprint()] = true
	}
	assert.Len(t, seen, 4)

	s, ok := <-summary
	require.True(t, ok)
	assert.Equal(t, 4, s.TotalFound)
	assert.ElementsMatch(t, []string{"a", "c"}, s.SourcesSucceeded)
	assert.Equal(t, []string{"d"}, s.SourcesFailed)
	assert.Len(t, s.Outcomes, 3)
	assert.NotEmpty(t, s.RunID)

	_, ok = <-summary
	assert.False(t, ok)
}

func TestStream_StopsOnCancel(t *testing.T) {
	src := &fakeSource{name: "big", jobs: makeJobs("big", 50), hang: true}
	h := newHarness(t, Config{PerSourceTimeout: time.Minute}, []*fakeSource{src})

	ctx, cancel := context.WithCancel(context.Background())
	jobs, summary := h.orch.Stream(ctx, domain.Query{})

	<-jobs
	cancel()
	for range jobs {
	}

	select {
	case s := <-summary:
		assert.Equal(t, []string{"big"}, s.SourcesPartial)
	case <-time.After(5 * time.Second):
		t.Fatal("summary not delivered after cancel")
	}
}

func TestOrdered_LeavesInputAlone(t *testing.T) {
	in := []string{"builtin", "remoteok"}
	assert.Equal(t, []string{"remoteok", "builtin"}, Ordered(in, nil))
	assert.Equal(t, []string{"builtin", "remoteok"}, in)
}
