package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elementx/internal/imagegen"
)

type call struct {
	prompt string
	start  time.Time
	end    time.Time
}

// fakeGen records every call and answers via fn.
type fakeGen struct {
	mu      sync.Mutex
	calls   []call
	active  atomic.Int32
	maxSeen atomic.Int32
	fn      func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeGen) Generate(ctx context.Context, prompt string) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	c := call{prompt: prompt, start: time.Now()}
	img, err := "img:"+prompt, error(nil)
	if f.fn != nil {
		img, err = f.fn(ctx, prompt)
	}
	c.end = time.Now()
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return img, err
}

func (f *fakeGen) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func fastConfig() Config {
	return Config{InterJobDelay: 10 * time.Millisecond, Cooldown: 150 * time.Millisecond, CallTimeout: time.Second}
}

func TestSubmitRunsJobsInOrderOneAtATime(t *testing.T) {
	gen := &fakeGen{fn: func(_ context.Context, p string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "img:" + p, nil
	}}
	q := New(gen, fastConfig(), nil, nil)
	defer q.Close(context.Background())

	// enqueue in a known order, then wait for all of them
	const n = 5
	jobs := make([]*job, n)
	for i := 0; i < n; i++ {
		jobs[i] = q.enqueue(fmt.Sprintf("k%d", i), fmt.Sprintf("p%d", i))
	}
	for i, j := range jobs {
		res := <-j.done
		require.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("img:p%d", i), res.Image)
	}

	calls := gen.snapshot()
	require.Len(t, calls, n)
	for i, c := range calls {
		assert.Equal(t, fmt.Sprintf("p%d", i), c.prompt)
		if i > 0 {
			gap := c.start.Sub(calls[i-1].end)
			assert.GreaterOrEqual(t, gap, 10*time.Millisecond, "call %d started %v after the previous one ended", i, gap)
		}
	}
	assert.EqualValues(t, 1, gen.maxSeen.Load())
}

func TestWorkerReturnsToIdle(t *testing.T) {
	q := New(&fakeGen{}, fastConfig(), nil, nil)
	defer q.Close(context.Background())

	assert.Equal(t, Idle, q.State())
	img, err := q.Submit(context.Background(), "k", "water")
	require.NoError(t, err)
	assert.Equal(t, "img:water", img)

	assert.Eventually(t, func() bool { return q.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.Zero(t, q.Depth())

	// a later submission starts a fresh worker
	img, err = q.Submit(context.Background(), "k2", "salt")
	require.NoError(t, err)
	assert.Equal(t, "img:salt", img)
}

func TestRateLimitPausesQueue(t *testing.T) {
	cfg := fastConfig()
	var limitedAt atomic.Int64
	var n atomic.Int32
	gen := &fakeGen{fn: func(_ context.Context, p string) (string, error) {
		if n.Add(1) == 1 {
			limitedAt.Store(time.Now().UnixNano())
			return "", fmt.Errorf("%w: 429", imagegen.ErrRateLimited)
		}
		return "img:" + p, nil
	}}
	q := New(gen, cfg, nil, nil)
	defer q.Close(context.Background())

	first := q.enqueue("a", "first")
	second := q.enqueue("b", "second")

	res := <-first.done
	require.Error(t, res.Err)
	assert.True(t, imagegen.IsRateLimited(res.Err))
	assert.Equal(t, Paused, q.State())
	assert.False(t, q.PausedUntil().IsZero())

	res = <-second.done
	require.NoError(t, res.Err)
	assert.Equal(t, "img:second", res.Image)

	calls := gen.snapshot()
	require.Len(t, calls, 2)
	pauseStart := time.Unix(0, limitedAt.Load())
	assert.GreaterOrEqual(t, calls[1].start.Sub(pauseStart), cfg.Cooldown)
}

func TestNoImageIsAnError(t *testing.T) {
	q := New(&fakeGen{fn: func(context.Context, string) (string, error) { return "", nil }}, fastConfig(), nil, nil)
	defer q.Close(context.Background())

	_, err := q.Submit(context.Background(), "k", "p")
	assert.ErrorIs(t, err, imagegen.ErrNoImage)
	assert.NotEqual(t, Paused, q.State())
}

func TestCallTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.CallTimeout = 30 * time.Millisecond
	gen := &fakeGen{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	q := New(gen, cfg, nil, nil)
	defer q.Close(context.Background())

	_, err := q.Submit(context.Background(), "k", "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGeneratorPanicResolvesJob(t *testing.T) {
	var n atomic.Int32
	gen := &fakeGen{fn: func(_ context.Context, p string) (string, error) {
		if n.Add(1) == 1 {
			panic("boom")
		}
		return "img:" + p, nil
	}}
	q := New(gen, fastConfig(), nil, nil)
	defer q.Close(context.Background())

	_, err := q.Submit(context.Background(), "k", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// the worker survives and keeps serving
	img, err := q.Submit(context.Background(), "k", "p")
	require.NoError(t, err)
	assert.Equal(t, "img:p", img)
}

func TestSubmitContextCancelStopsWaiting(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGen{fn: func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	}}
	q := New(gen, fastConfig(), nil, nil)
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Submit(ctx, "k", "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	assert.Eventually(t, func() bool { return len(gen.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCloseResolvesPendingJobs(t *testing.T) {
	started := make(chan struct{})
	gen := &fakeGen{fn: func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	q := New(gen, fastConfig(), nil, nil)

	inflight := q.enqueue("a", "a")
	<-started
	pending := []*job{q.enqueue("b", "b"), q.enqueue("c", "c")}
	assert.Equal(t, 2, q.Depth())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	res := <-inflight.done
	assert.ErrorIs(t, res.Err, context.Canceled)
	for _, j := range pending {
		res := <-j.done
		assert.ErrorIs(t, res.Err, ErrClosed)
	}

	_, err := q.Submit(context.Background(), "d", "d")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, gen.snapshot(), 1)
	assert.Equal(t, Idle, q.State())

	// closing twice is harmless
	assert.NoError(t, q.Close(context.Background()))
}

func TestCloseInterruptsCooldown(t *testing.T) {
	cfg := fastConfig()
	cfg.Cooldown = time.Hour
	gen := &fakeGen{fn: func(context.Context, string) (string, error) {
		return "", errors.Join(imagegen.ErrRateLimited)
	}}
	q := New(gen, cfg, nil, nil)

	first := q.enqueue("a", "a")
	<-first.done
	waiting := q.enqueue("b", "b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	res := <-waiting.done
	assert.ErrorIs(t, res.Err, ErrClosed)
}
