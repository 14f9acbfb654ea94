// Package queue serializes image-generation calls through a single worker,
// spacing calls by a fixed delay and pausing after rate-limit rejections.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"elementx/internal/imagegen"
	"elementx/internal/logging"
	"elementx/internal/metrics"
)

// ErrClosed resolves jobs that were pending or submitted after Close.
var ErrClosed = errors.New("queue: closed")

type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

var allStates = []string{Idle.String(), Running.String(), Paused.String()}

// Clock abstracts time for the worker's waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Config struct {
	// InterJobDelay is waited after every call before the next job starts.
	InterJobDelay time.Duration
	// Cooldown is how long the queue stays paused after a rate-limit error.
	Cooldown time.Duration
	// CallTimeout bounds one generator call; <= 0 disables it.
	CallTimeout time.Duration
	Clock       Clock
}

func DefaultConfig() Config {
	return Config{
		InterJobDelay: 2 * time.Second,
		Cooldown:      30 * time.Second,
		CallTimeout:   60 * time.Second,
	}
}

// Result is what a job resolves to.
type Result struct {
	Image string
	Err   error
}

type job struct {
	key    string
	prompt string
	done   chan Result
}

// Queue runs at most one generator call at a time, in submission order.
type Queue struct {
	gen     imagegen.Generator
	cfg     Config
	clock   Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	pending     []*job
	running     bool
	pausedUntil time.Time
	closed      bool
}

func New(gen imagegen.Generator, cfg Config, log *zap.Logger, m *metrics.Metrics) *Queue {
	if cfg.InterJobDelay < 0 {
		cfg.InterJobDelay = 0
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		gen:     gen,
		cfg:     cfg,
		clock:   clock,
		log:     logging.OrNop(log).Named("queue"),
		metrics: m,
		baseCtx: ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
	q.metrics.SetQueueState(Idle.String(), allStates...)
	return q
}

// Submit enqueues a job and waits for it. If ctx ends first the caller stops
// waiting but the job still runs and its result is discarded.
func (q *Queue) Submit(ctx context.Context, key, prompt string) (string, error) {
	j := q.enqueue(key, prompt)
	select {
	case res := <-j.done:
		return res.Image, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *Queue) enqueue(key, prompt string) *job {
	j := &job{key: key, prompt: prompt, done: make(chan Result, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		j.done <- Result{Err: ErrClosed}
		return j
	}
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.work()
	}
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	q.publishState()
	return j
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			q.publishState()
			return
		}
		if wait := q.pausedUntil.Sub(q.clock.Now()); wait > 0 {
			q.mu.Unlock()
			q.publishState()
			q.sleep(wait)
			continue
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		depth := len(q.pending)
		q.mu.Unlock()

		q.metrics.SetQueueDepth(depth)
		q.publishState()
		j.done <- q.run(j)
		q.sleep(q.cfg.InterJobDelay)
	}
}

func (q *Queue) run(j *job) (res Result) {
	ctx := q.baseCtx
	if q.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.CallTimeout)
		defer cancel()
	}
	start := q.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("queue: generator panic: %v", p)}
		}
		q.observe(j, start, res.Err)
	}()

	img, err := q.gen.Generate(ctx, j.prompt)
	if err == nil && img == "" {
		err = imagegen.ErrNoImage
	}
	if imagegen.IsRateLimited(err) {
		q.mu.Lock()
		q.pausedUntil = q.clock.Now().Add(q.cfg.Cooldown)
		q.mu.Unlock()
		q.metrics.IncRateLimited()
		q.log.Warn("image generation rate limited, pausing queue",
			zap.String("key", j.key),
			zap.Duration("cooldown", q.cfg.Cooldown))
		q.publishState()
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{Image: img}
}

func (q *Queue) observe(j *job, start time.Time, err error) {
	elapsed := q.clock.Now().Sub(start)
	outcome := "ok"
	switch {
	case err == nil:
	case imagegen.IsRateLimited(err):
		outcome = "rate_limited"
	case errors.Is(err, imagegen.ErrNoImage):
		outcome = "no_image"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	q.metrics.ObserveRemoteCall(outcome, elapsed)
	if err != nil && outcome != "rate_limited" {
		q.log.Info("image generation failed",
			zap.String("key", j.key),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	q.log.Debug("image generation finished", zap.String("key", j.key), zap.Duration("elapsed", elapsed))
}

// sleep waits d or until Close, whichever comes first.
func (q *Queue) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-q.clock.After(d):
	case <-q.stop:
	}
}

// State reports Paused while a cooldown is active, Running while the worker
// is alive, and Idle otherwise.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *Queue) stateLocked() State {
	if !q.closed && q.clock.Now().Before(q.pausedUntil) {
		return Paused
	}
	if q.running {
		return Running
	}
	return Idle
}

// Depth is the number of jobs waiting to start.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// PausedUntil is the end of the current cooldown, or zero.
func (q *Queue) PausedUntil() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pausedUntil
}

func (q *Queue) publishState() {
	if q.metrics == nil {
		return
	}
	q.metrics.SetQueueState(q.State().String(), allStates...)
}

// Close resolves every pending job with ErrClosed, cancels the call in
// flight, and waits for the worker to exit or ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	drained := q.pending
	q.pending = nil
	close(q.stop)
	q.mu.Unlock()

	q.cancel()
	for _, j := range drained {
		j.done <- Result{Err: ErrClosed}
	}
	q.metrics.SetQueueDepth(0)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
