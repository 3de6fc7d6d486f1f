package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChrome struct {
	mu       sync.Mutex
	launches []string
	procs    []*process
	err      error
	profiles []Profile
	// gate, when set, holds every launch until it is closed.
	gate    chan struct{}
	waiting atomic.Int32
}

func (f *fakeChrome) launch(ctx context.Context, proxy string) (*process, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.waiting.Add(1)
		defer f.waiting.Add(-1)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ctx, cancel := context.WithCancel(context.Background())
	pr := &process{ctx: ctx, cancel: cancel}
	f.launches = append(f.launches, proxy)
	f.procs = append(f.procs, pr)
	return pr, nil
}

func (f *fakeChrome) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launches)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestPool(cfg Config) (*Pool, *fakeChrome, *fakeClock) {
	p := NewPool(cfg, zap.NewNop())
	fc := &fakeChrome{}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	p.now = clock.now
	p.launch = fc.launch
	p.newTab = func(pr *process) (context.Context, context.CancelFunc) {
		return context.WithCancel(pr.ctx)
	}
	p.prepare = func(_ context.Context, prof Profile) error {
		fc.mu.Lock()
		fc.profiles = append(fc.profiles, prof)
		fc.mu.Unlock()
		return nil
	}
	return p, fc, clock
}

func TestAcquire_LaunchesLazilyOnce(t *testing.T) {
	p, fc, _ := newTestPool(Config{MaxContexts: 3})
	ctx := context.Background()

	assert.False(t, p.Stats().Launched)
	assert.Equal(t, 0, fc.launchCount())

	a, err := p.AcquireContext(ctx, nil)
	require.NoError(t, err)
	b, err := p.AcquireContext(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fc.launchCount())
	st := p.Stats()
	assert.True(t, st.Launched)
	assert.Equal(t, 2, st.Open)
	assert.Equal(t, int64(2), st.Acquisitions)

	a.Release()
	b.Release()
	assert.Equal(t, 0, p.Stats().Open)
}

func TestAcquire_RandomProfileWhenNil(t *testing.T) {
	p, fc, _ := newTestPool(Config{})
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	defer c.Release()

	assert.Contains(t, userAgents, c.Profile.UserAgent)
	assert.Contains(t, viewports, c.Profile.Viewport)
	assert.Contains(t, timezones, c.Profile.Timezone)
	assert.Equal(t, "en-US", c.Profile.Locale)
	require.Len(t, fc.profiles, 1)
	assert.Equal(t, c.Profile, fc.profiles[0])
}

func TestAcquire_BoundedByMaxContexts(t *testing.T) {
	p, _, _ := newTestPool(Config{MaxContexts: 1})
	ctx := context.Background()

	first, err := p.AcquireContext(ctx, nil)
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = p.AcquireContext(tctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *Context, 1)
	go func() {
		c, err := p.AcquireContext(ctx, nil)
		if err == nil {
			got <- c
		}
	}()

	select {
	case <-got:
		t.Fatal("second context acquired while the first was held")
	case <-time.After(30 * time.Millisecond):
	}

	first.Release()
	select {
	case c := <-got:
		c.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquisition never unblocked")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	p, _, _ := newTestPool(Config{MaxContexts: 1})
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)

	c.Release()
	c.Release()
	assert.Equal(t, 0, p.Stats().Open)
	assert.Error(t, c.Ctx().Err(), "tab context is cancelled")

	again, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	again.Release()
}

func TestRelease_OnCallerCancel(t *testing.T) {
	p, _, _ := newTestPool(Config{MaxContexts: 2})
	ctx, cancel := context.WithCancel(context.Background())

	c, err := p.AcquireContext(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Open)

	cancel()
	assert.Eventually(t, func() bool { return p.Stats().Open == 0 }, time.Second, 5*time.Millisecond)
	assert.Error(t, c.Ctx().Err())
	c.Release()
	assert.Equal(t, 0, p.Stats().Open)
}

func TestSweep_TearsDownIdleProcess(t *testing.T) {
	p, fc, clock := newTestPool(Config{IdleTimeout: time.Minute})

	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	assert.False(t, p.Sweep(), "open context keeps the process alive")

	c.Release()
	clock.advance(30 * time.Second)
	assert.False(t, p.Sweep(), "not idle long enough")

	clock.advance(31 * time.Second)
	assert.True(t, p.Sweep())
	assert.False(t, p.Stats().Launched)
	assert.Error(t, fc.procs[0].ctx.Err(), "process was cancelled")

	c2, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	defer c2.Release()
	assert.Equal(t, 2, fc.launchCount(), "next acquisition relaunches")
}

func TestAcquire_ProxyGetsDedicatedProcess(t *testing.T) {
	p, fc, _ := newTestPool(Config{})

	c, err := p.AcquireContext(context.Background(), &Profile{Proxy: "http://10.0.0.1:8080"})
	require.NoError(t, err)

	assert.Equal(t, []string{"http://10.0.0.1:8080"}, fc.launches)
	assert.False(t, p.Stats().Launched, "shared process untouched")

	c.Release()
	assert.Error(t, fc.procs[0].ctx.Err(), "dedicated process torn down with the context")
}

func (f *fakeChrome) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

// within fails the test when fn does not return in d.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call did not return within %s", d)
	}
}

func TestAcquire_SlowLaunchDoesNotBlockPool(t *testing.T) {
	p, fc, _ := newTestPool(Config{MaxContexts: 4})
	first, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)

	gate := fc.hold()
	slow := make(chan error, 1)
	go func() {
		c, err := p.AcquireContext(context.Background(), &Profile{Proxy: "http://10.0.0.1:8080"})
		if err == nil {
			c.Release()
		}
		slow <- err
	}()
	require.Eventually(t, func() bool { return fc.waiting.Load() == 1 }, time.Second, 5*time.Millisecond)

	within(t, 500*time.Millisecond, func() {
		first.Release()
		assert.Equal(t, 0, p.Stats().Open, "a context is counted once its process is up")
	})

	within(t, time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := p.AcquireContext(ctx, &Profile{Proxy: "http://10.0.0.2:8080"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	within(t, 500*time.Millisecond, func() {
		c, err := p.AcquireContext(context.Background(), nil)
		if assert.NoError(t, err) {
			c.Release()
		}
	})

	close(gate)
	select {
	case err := <-slow:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("gated launch never finished")
	}
	assert.Equal(t, 0, p.Stats().Open)
}

func TestAcquire_SharedLaunchHonorsDeadline(t *testing.T) {
	p, fc, _ := newTestPool(Config{MaxContexts: 4})
	gate := fc.hold()

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := p.AcquireContext(ctx, nil)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		}()
	}
	within(t, time.Second, wg.Wait)
	assert.Equal(t, 0, p.Stats().Open)
	assert.Zero(t, fc.launchCount())

	close(gate)
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	c.Release()
	assert.Equal(t, 1, fc.launchCount())
}

func TestAcquire_CloseDuringLaunch(t *testing.T) {
	p, fc, _ := newTestPool(Config{})
	gate := fc.hold()

	res := make(chan error, 1)
	go func() {
		_, err := p.AcquireContext(context.Background(), nil)
		res <- err
	}()
	require.Eventually(t, func() bool { return fc.waiting.Load() == 1 }, time.Second, 5*time.Millisecond)

	within(t, 500*time.Millisecond, func() { assert.NoError(t, p.Close()) })
	close(gate)

	select {
	case err := <-res:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("acquisition never returned")
	}
	require.Len(t, fc.procs, 1)
	assert.Error(t, fc.procs[0].ctx.Err(), "late process is torn down")
	assert.False(t, p.Stats().Launched)
}

func TestAcquire_LaunchFailureFreesSlot(t *testing.T) {
	p, fc, _ := newTestPool(Config{MaxContexts: 1})
	fc.err = ErrChromeNotFound

	_, err := p.AcquireContext(context.Background(), nil)
	assert.ErrorIs(t, err, ErrChromeNotFound)
	assert.Equal(t, 0, p.Stats().Open)

	fc.err = nil
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	c.Release()
}

func TestAcquire_PrepareFailureReleases(t *testing.T) {
	p, _, _ := newTestPool(Config{MaxContexts: 1})
	p.prepare = func(context.Context, Profile) error { return errors.New("cdp boom") }

	_, err := p.AcquireContext(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cdp boom")
	assert.Equal(t, 0, p.Stats().Open)
}

func TestClose(t *testing.T) {
	p, fc, _ := newTestPool(Config{})
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Error(t, fc.procs[0].ctx.Err())
	assert.Error(t, c.Ctx().Err(), "open tabs die with the process")
	c.Release()

	_, err = p.AcquireContext(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestStart_SweepsInBackground(t *testing.T) {
	p, _, clock := newTestPool(Config{IdleTimeout: time.Minute, SweepInterval: 10 * time.Millisecond})
	c, err := p.AcquireContext(context.Background(), nil)
	require.NoError(t, err)
	c.Release()
	clock.advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	assert.Eventually(t, func() bool { return !p.Stats().Launched }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestProfileHelpers(t *testing.T) {
	assert.Equal(t, "en-US,en;q=0.9", Profile{Locale: "en-US"}.acceptLanguage())
	assert.Equal(t, "de", Profile{Locale: "de"}.acceptLanguage())

	custom := Profile{UserAgent: "ua", Viewport: Viewport{Width: 800, Height: 600}}.withDefaults()
	assert.Equal(t, "ua", custom.UserAgent)
	assert.Equal(t, Viewport{Width: 800, Height: 600}, custom.Viewport)
	assert.NotEmpty(t, custom.Timezone)
}

func TestFindChrome_ExplicitMissing(t *testing.T) {
	_, err := findChrome("/definitely/not/chrome")
	assert.ErrorIs(t, err, ErrChromeNotFound)
}
