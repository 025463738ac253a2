package tasks

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Controller owns the agent's periodic workers and suspends or resumes them by name.
type Controller struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	order   []string
}

func NewController() *Controller {
	return &Controller{workers: make(map[string]*Worker)}
}

// Register adds a worker. Names must be unique.
func (c *Controller) Register(w *Worker) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.workers[w.name]; ok {
		return fmt.Errorf("task %q already registered", w.name)
	}
	c.workers[w.name] = w
	c.order = append(c.order, w.name)
	metrics.TaskSuspended.WithLabelValues(w.name).Set(0)
	return nil
}

// Run starts every registered worker and returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.RLock()
	workers := make([]*Worker, 0, len(c.order))
	for _, name := range c.order {
		workers = append(workers, c.workers[name])
	}
	c.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	log.Info("Workers started", "tasks", len(workers))
	return g.Wait()
}

// Suspend halts the named workers. It returns once every named worker has
// finished its in-flight iteration. Already suspended workers are skipped.
func (c *Controller) Suspend(ctx context.Context, names ...string) error {
	workers, err := c.lookup(names)
	if err != nil {
		return err
	}

	for _, w := range workers {
		if err := w.Suspend(ctx); err != nil {
			return fmt.Errorf("suspend task %q: %w", w.name, err)
		}
		metrics.TaskSuspended.WithLabelValues(w.name).Set(1)
	}

	log.Info("Tasks suspended", "tasks", names)
	return nil
}

// Resume restarts the named workers. Running workers are skipped.
func (c *Controller) Resume(names ...string) error {
	workers, err := c.lookup(names)
	if err != nil {
		return err
	}

	for _, w := range workers {
		w.Resume()
		metrics.TaskSuspended.WithLabelValues(w.name).Set(0)
	}

	log.Info("Tasks resumed", "tasks", names)
	return nil
}

// Suspended returns the names of the currently suspended workers.
func (c *Controller) Suspended() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, name := range c.order {
		if c.workers[name].Suspended() {
			out = append(out, name)
		}
	}
	return out
}

// Handle returns a capability bound to a fixed set of workers.
func (c *Controller) Handle(names ...string) (*Handle, error) {
	if _, err := c.lookup(names); err != nil {
		return nil, err
	}
	return &Handle{ctrl: c, names: append([]string(nil), names...)}, nil
}

func (c *Controller) lookup(names []string) ([]*Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Worker, 0, len(names))
	for _, name := range names {
		w, ok := c.workers[name]
		if !ok {
			return nil, fmt.Errorf("unknown task %q", name)
		}
		out = append(out, w)
	}
	return out, nil
}

// Handle suspends and resumes one fixed set of workers.
type Handle struct {
	ctrl  *Controller
	names []string
}

func (h *Handle) Suspend(ctx context.Context) error {
	return h.ctrl.Suspend(ctx, h.names...)
}

// Resume cannot fail: the names were resolved when the handle was created.
func (h *Handle) Resume() {
	_ = h.ctrl.Resume(h.names...)
}

func (h *Handle) Names() []string {
	return append([]string(nil), h.names...)
}
