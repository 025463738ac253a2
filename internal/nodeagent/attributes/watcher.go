package attributes

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Platform is the attribute side of the platform session.
type Platform interface {
	SubscribeAttributes(ctx context.Context, handler core.HandlerFunc) error
	RequestAttributes(ctx context.Context, keys []string) ([]byte, error)
}

// Updater receives desired firmware.
type Updater interface {
	Current() core.FirmwareIdentity
	Request(info core.FirmwareInfo)
}

// Watcher subscribes to shared attributes and forwards firmware changes.
type Watcher struct {
	platform Platform
	updater  Updater
	keys     []string
	timeout  time.Duration
}

func NewWatcher(platform Platform, updater Updater, keys []string, timeout time.Duration) *Watcher {
	return &Watcher{platform: platform, updater: updater, keys: keys, timeout: timeout}
}

// Subscribe registers for pushes and then fetches the current values once.
// It fails if the fetch times out; the pushes registered so far stay active.
func (w *Watcher) Subscribe(ctx context.Context) error {
	if err := w.platform.SubscribeAttributes(ctx, w.Handle); err != nil {
		return fmt.Errorf("subscribe attributes: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	payload, err := w.platform.RequestAttributes(reqCtx, w.keys)
	if err != nil {
		return fmt.Errorf("request attributes: %w", err)
	}

	if err := w.Handle(ctx, payload); err != nil {
		log.Warn("Discarding malformed attribute response", "err", err)
	}
	return nil
}

// Handle processes one push. Malformed payloads are returned as errors and
// change nothing.
func (w *Watcher) Handle(_ context.Context, payload []byte) error {
	u, err := Decode(payload, w.keys)
	if err != nil {
		return err
	}

	for key, raw := range u.Other {
		log.Info("Shared attribute updated", "key", key, "value", string(raw))
	}

	if !u.HasFirmware() {
		if u.Firmware != (core.FirmwareInfo{}) {
			log.Info("Incomplete firmware attributes, ignoring", "title", u.Firmware.Title, "version", u.Firmware.Version)
		}
		return nil
	}

	current := w.updater.Current()
	if u.Firmware.FirmwareIdentity == current {
		log.Info("Firmware is up to date", "firmware", current.String())
		return nil
	}

	log.Info("New firmware requested", "current", current.String(), "desired", u.Firmware.FirmwareIdentity.String())
	w.updater.Request(u.Firmware)
	return nil
}
