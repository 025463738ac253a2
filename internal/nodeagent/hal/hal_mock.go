//go:build !linux

package hal

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

// MockHAL simulates the board on a development machine.
type MockHAL struct {
	*ImageStore

	start  time.Time
	output atomic.Bool
}

func NewHAL(opts *options.DeviceOptions) (core.HAL, error) {
	store, err := NewImageStore(opts.StateDir, core.FirmwareIdentity{
		Title:   opts.FirmwareTitle,
		Version: opts.FirmwareVersion,
	})
	if err != nil {
		return nil, err
	}
	return &MockHAL{ImageStore: store, start: time.Now()}, nil
}

// ReadClimate returns a slow daily-like wave around 25°C and 60%.
func (h *MockHAL) ReadClimate(context.Context) (float64, float64, error) {
	phase := time.Since(h.start).Minutes() / 10
	t := 25 + 3*math.Sin(phase)
	rh := 60 - 10*math.Sin(phase)
	return math.Round(t*100) / 100, math.Round(rh*100) / 100, nil
}

func (h *MockHAL) ReadLight(context.Context) (int, error) {
	phase := time.Since(h.start).Minutes() / 10
	return int(2048 + 1500*math.Cos(phase)), nil
}

func (h *MockHAL) SetOutput(on bool) error {
	h.output.Store(on)
	log.Info("[HAL-Mock] Output switched", "on", on)
	return nil
}

func (h *MockHAL) Output() bool {
	return h.output.Load()
}

func (h *MockHAL) Reboot() error {
	log.Warn("[HAL-Mock] >>> REBOOT REQUESTED <<<")
	log.Info("[HAL-Mock] New firmware committed, restart the agent to run it",
		"firmware", h.FirmwareIdentity().String(), "image", h.ImagePath())
	return nil
}
