package session

import (
	"context"
	"sync/atomic"

	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Link is the network link gate.
type Link interface {
	Up() bool
	Connect(ctx context.Context) error
}

// Connector is the platform session.
type Connector interface {
	Connect(ctx context.Context) error
	Connected() bool
	Generation() uint64
}

// Action is a one-time setup action. It is retried on the next poll until it succeeds.
type Action func(ctx context.Context) error

// Actions are the one-time setup actions, run in this order.
type Actions struct {
	SubscribeRPC        Action
	AnnounceFirmware    Action
	SubscribeAttributes Action
}

// Manager owns the session state. EnsureConnected must be called from a single goroutine;
// Current may be called from any goroutine.
type Manager struct {
	link     Link
	platform Connector
	actions  Actions

	state atomic.Pointer[State]
}

func NewManager(link Link, platform Connector, actions Actions) *Manager {
	m := &Manager{link: link, platform: platform, actions: actions}
	initial := Initial()
	m.state.Store(&initial)
	return m
}

// Current returns the last published state.
func (m *Manager) Current() State {
	return *m.state.Load()
}

// EnsureConnected advances the session by at most one step and returns the new state.
func (m *Manager) EnsureConnected(ctx context.Context) State {
	cur := m.Current()

	if !m.link.Up() {
		if cur.Connected() {
			log.Warn("Network link lost")
		}
		if err := m.link.Connect(ctx); err != nil {
			log.Warn("Network link unavailable", "err", err)
		}
		return m.publish(cur.Disconnect(false))
	}

	if !m.platform.Connected() {
		if cur.Connected() {
			log.Warn("Platform session lost")
		}
		if err := m.platform.Connect(ctx); err != nil {
			log.Error(err, "Failed to connect to platform")
			return m.publish(cur.Disconnect(true))
		}
		return m.publish(m.connected())
	}

	// The transport reconnected on its own since the last poll.
	if gen := m.platform.Generation(); !cur.Connected() || cur.Generation != gen {
		return m.publish(m.connected())
	}

	switch {
	case !cur.RPCSubscribed:
		if m.run(ctx, "rpc_subscribe", m.actions.SubscribeRPC) {
			return m.publish(cur.WithRPCSubscribed())
		}
	case !cur.FirmwareInfoSent:
		if m.run(ctx, "firmware_announce", m.actions.AnnounceFirmware) {
			return m.publish(cur.WithFirmwareInfoSent())
		}
	case !cur.AttributesSubscribed:
		if m.run(ctx, "attributes_subscribe", m.actions.SubscribeAttributes) {
			return m.publish(cur.WithAttributesSubscribed())
		}
	}

	return cur
}

func (m *Manager) connected() State {
	gen := m.platform.Generation()
	metrics.SessionConnectsTotal.Inc()
	log.Info("Platform session established", "generation", gen)
	return m.Current().Connect(gen)
}

func (m *Manager) run(ctx context.Context, name string, action Action) bool {
	if action == nil {
		return true
	}

	err := action(ctx)
	metrics.SetupActionsTotal.WithLabelValues(name, metrics.Result(err)).Inc()
	if err != nil {
		log.Error(err, "Session setup action failed, will retry", "action", name)
		return false
	}

	log.Info("Session setup action done", "action", name)
	return true
}

func (m *Manager) publish(s State) State {
	m.state.Store(&s)
	if s.Connected() {
		metrics.SessionConnected.Set(1)
	} else {
		metrics.SessionConnected.Set(0)
	}
	return s
}
