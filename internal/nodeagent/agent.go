package nodeagent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/console"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/hub"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/ota"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/sensor"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/server"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/session"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/tasks"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Agent owns the workers and the session loop of one device.
type Agent struct {
	deviceID string
	interval time.Duration

	board       core.HAL
	hub         *hub.Hub
	sampler     *sensor.Sampler
	session     *session.Manager
	coordinator *ota.Coordinator
	tasks       *tasks.Controller
	console     *console.Console
	server      *server.Server
}

var _ server.Status = (*Agent)(nil)

// Run starts every worker and polls the session until ctx is done or a new
// firmware has been committed.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting cpeer-node-agent", "deviceID", a.deviceID, "firmware", a.coordinator.Current().String())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.tasks.Run(ctx) })

	if a.console != nil {
		g.Go(func() error {
			if err := a.console.Run(ctx); err != nil {
				log.Error(err, "Console reader stopped")
			}
			return nil
		})
	}

	if a.server != nil {
		g.Go(func() error { return a.server.Start(ctx) })
	}

	g.Go(func() error {
		defer a.hub.Stop()
		return a.pollSession(ctx)
	})

	err := g.Wait()
	if errors.Is(err, ota.ErrRestarted) {
		log.Info("Agent stopped for restart", "firmware", a.coordinator.Current().String())
		return nil
	}
	if err == nil {
		log.Info("Agent shutting down...")
	}
	return err
}

// pollSession is the only goroutine that drives the session and the update
// state machine.
func (a *Agent) pollSession(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.pollOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) pollOnce(ctx context.Context) error {
	st := a.session.EnsureConnected(ctx)

	for ctx.Err() == nil {
		again, err := a.coordinator.Step(ctx, st)
		if errors.Is(err, ota.ErrRestarted) {
			return err
		}
		if err != nil {
			log.Error(err, "Firmware update step failed", "state", a.coordinator.State())
		}
		if !again {
			break
		}
	}
	return nil
}

// Ready reports whether the platform session is up.
func (a *Agent) Ready() bool {
	return a.session.Current().Connected()
}

// Snapshot is the /debug/state view.
type Snapshot struct {
	DeviceID  string                `json:"deviceID"`
	Session   session.State         `json:"session"`
	Update    string                `json:"update"`
	Firmware  core.FirmwareIdentity `json:"firmware"`
	Progress  [2]int64              `json:"progress"`
	Suspended []string              `json:"suspended"`
	Reading   *sensor.Reading       `json:"reading,omitempty"`
	Output    bool                  `json:"output"`
}

func (a *Agent) Snapshot() any {
	done, total := a.coordinator.Progress()
	s := Snapshot{
		DeviceID:  a.deviceID,
		Session:   a.session.Current(),
		Update:    a.coordinator.State(),
		Firmware:  a.coordinator.Current(),
		Progress:  [2]int64{done, total},
		Suspended: a.tasks.Suspended(),
		Output:    a.board.Output(),
	}
	if r, ok := a.sampler.Latest(); ok {
		s.Reading = &r
	}
	return s
}
