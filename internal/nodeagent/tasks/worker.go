package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Func is one iteration of a periodic task.
type Func func(ctx context.Context)

// Worker runs a Func on a fixed period. Each iteration holds the run token;
// a suspended worker keeps the token, so no iteration can start until Resume.
type Worker struct {
	name   string
	period time.Duration
	fn     Func

	token chan struct{}

	// ctl serializes Suspend and Resume; mu only guards the flag, so readers
	// never wait on an in-flight iteration.
	ctl       sync.Mutex
	mu        sync.Mutex
	suspended bool
}

// NewWorker creates a worker that calls fn every period.
func NewWorker(name string, period time.Duration, fn Func) *Worker {
	return &Worker{
		name:   name,
		period: period,
		fn:     fn,
		token:  make(chan struct{}, 1),
	}
}

func (w *Worker) Name() string { return w.name }

// Run executes iterations until ctx is done. The first iteration starts immediately.
func (w *Worker) Run(ctx context.Context) {
	log.Debug("Worker started", "task", w.name, "period", w.period)
	defer log.Debug("Worker stopped", "task", w.name)

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		w.tick(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one iteration unless the token is held by Suspend.
func (w *Worker) tick(ctx context.Context) bool {
	select {
	case w.token <- struct{}{}:
	default:
		return false
	}
	defer func() { <-w.token }()

	if ctx.Err() != nil {
		return false
	}
	w.fn(ctx)
	return true
}

// Suspend waits for an in-flight iteration to finish and blocks new ones.
// Suspending a suspended worker is a no-op.
func (w *Worker) Suspend(ctx context.Context) error {
	w.ctl.Lock()
	defer w.ctl.Unlock()

	if w.Suspended() {
		return nil
	}

	select {
	case w.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.suspended = true
	w.mu.Unlock()
	return nil
}

// Resume lets iterations start again. Resuming a running worker is a no-op.
func (w *Worker) Resume() {
	w.ctl.Lock()
	defer w.ctl.Unlock()

	if !w.Suspended() {
		return
	}

	w.mu.Lock()
	w.suspended = false
	w.mu.Unlock()
	<-w.token
}

// Suspended reports whether the worker is currently suspended.
func (w *Worker) Suspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suspended
}
