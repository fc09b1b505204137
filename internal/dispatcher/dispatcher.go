package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/session"
)

var (
	// ErrClosed is reported once the dispatcher stops accepting work.
	ErrClosed = errors.New("dispatcher: closed")
	// ErrSaturated is reported when the queue is full.
	ErrSaturated = errors.New("dispatcher: queue is full")
)

// DefaultTimeout applies to requests that do not carry their own.
const DefaultTimeout = 30 * time.Second

// Config sizes the worker pool.
type Config struct {
	Workers    int
	QueueDepth int
	// DefaultTimeout replaces a zero Request.Timeout.
	DefaultTimeout time.Duration
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Queued     int64 `json:"queued"`
	Running    int64 `json:"running"`
	Abandoned  int64 `json:"abandoned"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	TimedOut   int64 `json:"timed_out"`
}

type counters struct {
	queued, running, abandoned  atomic.Int64
	succeeded, failed, timedOut atomic.Int64
}

// Dispatcher executes requests for sessions held in a session.Registry.
type Dispatcher struct {
	registry *session.Registry
	cfg      Config
	jobs     chan *job
	wg       sync.WaitGroup
	stats    counters

	mu     sync.RWMutex
	closed bool
}

// New starts cfg.Workers workers. Workers log through the logger carried by ctx.
func New(ctx context.Context, reg *session.Registry, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	d := &Dispatcher{
		registry: reg,
		cfg:      cfg,
		jobs:     make(chan *job, cfg.QueueDepth),
	}
	ctxlog.FromContext(ctx).Debug("Starting dispatcher workers.", "workers", cfg.Workers, "queue_depth", cfg.QueueDepth)
	for i := 1; i <= cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	return d
}

// Execute resolves the session for identity and runs req against it. If the
// session is discarded while req waits for it, req is retried once against a
// fresh session.
func (d *Dispatcher) Execute(ctx context.Context, identity string, req Request) Result {
	for attempt := 0; attempt < 2; attempt++ {
		s, err := d.registry.GetOrCreate(ctx, identity)
		if err != nil {
			d.stats.failed.Add(1)
			return failure(KindUnavailable, false, "Failed to create session: %v", err)
		}
		res, err := d.run(ctx, s, req)
		if errors.Is(err, session.ErrDiscarded) {
			ctxlog.FromContext(ctx).Debug("Session discarded while waiting, retrying.", "session", s.LogID())
			continue
		}
		return res
	}
	d.stats.failed.Add(1)
	return failure(KindUnavailable, false, "Session was discarded while waiting")
}

// Run executes req against s, bounded by req.Timeout.
func (d *Dispatcher) Run(ctx context.Context, s *session.Session, req Request) Result {
	res, err := d.run(ctx, s, req)
	if errors.Is(err, session.ErrDiscarded) {
		d.stats.failed.Add(1)
		return failure(KindUnavailable, false, "Session was discarded while waiting")
	}
	return res
}

// Release discards the session for identity. Releasing an unknown identity
// succeeds.
func (d *Dispatcher) Release(ctx context.Context, identity string) error {
	return d.registry.Remove(ctx, identity)
}

// run returns session.ErrDiscarded, and no result, when s was discarded
// before req could start.
//
// The execution deadline belongs to the request, not the caller. If the
// caller goes away while req runs, run stops waiting but req keeps its
// session and finishes, or times out, in the background.
func (d *Dispatcher) run(ctx context.Context, s *session.Session, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.cfg.DefaultTimeout
	}
	execCtx, cancelExec := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	deadline, _ := execCtx.Deadline()
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	logger := ctxlog.FromContext(ctx).With("session", s.LogID())

	if err := s.Acquire(ctx); err != nil {
		cancelExec()
		if errors.Is(err, session.ErrDiscarded) {
			return Result{}, err
		}
		logger.Warn("Request expired waiting for its session.", "timeout", timeout, "error", err)
		d.countExpired(ctx)
		return d.expired(ctx, timeout, false), nil
	}

	j := &job{ctx: execCtx, sess: s, req: req, done: make(chan outcome, 1)}
	if err := d.enqueue(j); err != nil {
		cancelExec()
		s.Unlock()
		d.stats.failed.Add(1)
		logger.Warn("Request rejected.", "error", err)
		if errors.Is(err, ErrSaturated) {
			return failure(KindOverloaded, false, "Server is busy, try again later"), nil
		}
		return failure(KindUnavailable, false, "Server is shutting down"), nil
	}

	select {
	case out := <-j.done:
		cancelExec()
		return d.finish(ctx, s, out), nil
	case <-ctx.Done():
	}

	if j.state.CompareAndSwap(stateQueued, stateAbandoned) {
		cancelExec()
		s.Unlock()
		logger.Warn("Request expired in queue.", "timeout", timeout, "error", ctx.Err())
		d.countExpired(ctx)
		return d.expired(ctx, timeout, false), nil
	}

	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Info("Caller went away; execution continues on its session.")
		go d.await(execCtx, cancelExec, s, j, timeout)
		return d.expired(ctx, timeout, false), nil
	}

	defer cancelExec()
	return d.abandon(ctx, s, j, timeout), nil
}

// await finishes a job whose caller stopped waiting.
func (d *Dispatcher) await(ctx context.Context, cancel context.CancelFunc, s *session.Session, j *job, timeout time.Duration) {
	defer cancel()
	select {
	case out := <-j.done:
		d.finish(ctx, s, out)
	case <-ctx.Done():
		d.abandon(ctx, s, j, timeout)
	}
}

// abandon gives up on a running job whose deadline passed and evicts its
// session. A job that finished right at the deadline keeps its result.
func (d *Dispatcher) abandon(ctx context.Context, s *session.Session, j *job, timeout time.Duration) Result {
	d.stats.abandoned.Add(1)
	if !j.state.CompareAndSwap(stateRunning, stateAbandoned) {
		d.stats.abandoned.Add(-1)
		return d.finish(ctx, s, <-j.done)
	}

	ctxlog.FromContext(ctx).Error("Execution timed out, abandoning worker and discarding session.", "session", s.LogID(), "timeout", timeout)
	d.stats.timedOut.Add(1)
	d.registry.Evict(context.WithoutCancel(ctx), s, session.ReasonTimeout)
	return timedOut(timeout, true)
}

func (d *Dispatcher) countExpired(ctx context.Context) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.stats.timedOut.Add(1)
		return
	}
	d.stats.failed.Add(1)
}

func (d *Dispatcher) expired(ctx context.Context, timeout time.Duration, evicted bool) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timedOut(timeout, evicted)
	}
	return failure(KindUnavailable, evicted, "Execution cancelled: %v", context.Cause(ctx))
}

func (d *Dispatcher) finish(ctx context.Context, s *session.Session, out outcome) Result {
	if out.err != nil {
		ctxlog.FromContext(ctx).Error("Execution failed, discarding session.", "session", s.LogID(), "error", out.err)
		d.stats.failed.Add(1)
		d.registry.Evict(context.WithoutCancel(ctx), s, session.ReasonFault)
		return failure(KindExecutionError, true, "%s", out.err.Error())
	}
	d.registry.Touch(ctx, s)
	d.stats.succeeded.Add(1)
	return success(out.text)
}

func (d *Dispatcher) enqueue(j *job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	d.stats.queued.Add(1)
	select {
	case d.jobs <- j:
		return nil
	default:
		d.stats.queued.Add(-1)
		return ErrSaturated
	}
}

// Stats returns the current pool counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:    d.cfg.Workers,
		QueueDepth: d.cfg.QueueDepth,
		Queued:     d.stats.queued.Load(),
		Running:    d.stats.running.Load(),
		Abandoned:  d.stats.abandoned.Load(),
		Succeeded:  d.stats.succeeded.Load(),
		Failed:     d.stats.failed.Load(),
		TimedOut:   d.stats.timedOut.Load(),
	}
}

// Close stops accepting requests and waits for workers to drain the queue.
// Workers stuck in abandoned executions are not waited for past ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatcher workers: %w", ctx.Err())
	}
}
