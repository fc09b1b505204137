package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/specialistvlad/codebox/internal/session"
)

const (
	stateQueued int32 = iota
	stateRunning
	stateFinished
	stateAbandoned
)

type outcome struct {
	text string
	err  error
}

// job is one request travelling from Run to a worker. Exactly one of Run and
// the worker moves it out of stateQueued or stateRunning.
type job struct {
	ctx   context.Context
	sess  *session.Session
	req   Request
	state atomic.Int32
	done  chan outcome
}

// worker is the processing loop for a single pool goroutine.
func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	defer d.wg.Done()
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for j := range d.jobs {
		d.stats.queued.Add(-1)
		if !j.state.CompareAndSwap(stateQueued, stateRunning) {
			logger.Debug("Skipping request abandoned while queued.", "session", j.sess.LogID())
			continue
		}

		jobLogger := logger.With("session", j.sess.LogID())
		jobLogger.Debug("Worker picked up request.")
		d.stats.running.Add(1)
		start := time.Now()
		text, err := call(j)
		d.stats.running.Add(-1)
		j.sess.Unlock()

		if j.state.CompareAndSwap(stateRunning, stateFinished) {
			j.done <- outcome{text: text, err: err}
			jobLogger.Debug("Request finished.", "duration", time.Since(start), "error", err)
			continue
		}

		d.stats.abandoned.Add(-1)
		jobLogger.Warn("Abandoned execution returned.", "duration", time.Since(start), "error", err)
	}
	logger.Debug("Worker finished.")
}

// call invokes the Executor, turning a panic into a fault.
func call(j *job) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &engine.ExecError{Message: fmt.Sprintf("executor panicked: %v", r)}
		}
	}()
	return j.sess.Executor().Execute(j.ctx, j.req.Code, j.req.Files)
}
