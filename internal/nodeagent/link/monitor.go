package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/autopeer-io/nodeagent/pkg/log"
)

var ErrLinkDown = errors.New("network link is down")

// Probe reports whether the link is usable.
type Probe func() (bool, error)

// Monitor gates the session on the network link.
type Monitor struct {
	probe    Probe
	attempts uint64
	delay    time.Duration
}

// NewMonitor watches iface, or any non-loopback interface when iface is empty.
// Connect checks the link up to attempts times.
func NewMonitor(iface string, attempts uint64) *Monitor {
	return &Monitor{
		probe:    InterfaceProbe(iface),
		attempts: attempts,
		delay:    500 * time.Millisecond,
	}
}

// NewMonitorWithProbe is used by tests and boards with a custom link check.
func NewMonitorWithProbe(probe Probe, attempts uint64, delay time.Duration) *Monitor {
	return &Monitor{probe: probe, attempts: attempts, delay: delay}
}

// Up reports the current link state.
func (m *Monitor) Up() bool {
	up, err := m.probe()
	if err != nil {
		log.Debug("Link probe failed", "err", err)
		return false
	}
	return up
}

// Connect waits for the link with a bounded number of constant-delay checks.
// Bringing the interface up is left to the OS network manager.
func (m *Monitor) Connect(ctx context.Context) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.delay), m.attempts),
		ctx,
	)

	err := backoff.Retry(func() error {
		if m.Up() {
			return nil
		}
		return ErrLinkDown
	}, b)
	if err != nil {
		return fmt.Errorf("link not up after %d checks: %w", m.attempts+1, err)
	}

	log.Info("Network link is up")
	return nil
}

// InterfaceProbe checks that an interface is up and has a unicast address.
func InterfaceProbe(name string) Probe {
	return func() (bool, error) {
		var ifaces []net.Interface
		if name != "" {
			iface, err := net.InterfaceByName(name)
			if err != nil {
				return false, err
			}
			ifaces = []net.Interface{*iface}
		} else {
			all, err := net.Interfaces()
			if err != nil {
				return false, err
			}
			ifaces = all
		}

		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
					return true, nil
				}
			}
		}
		return false, nil
	}
}
