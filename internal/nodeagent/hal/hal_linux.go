//go:build linux

package hal

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

// LinuxHAL drives the board through sysfs. Temperature and humidity come from
// an IIO device in milli-units; light is a raw ADC count.
type LinuxHAL struct {
	*ImageStore

	tempPath, humPath, lightPath, outputPath string

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

	return &LinuxHAL{
		ImageStore: store,
		tempPath:   opts.TemperaturePath,
		humPath:    opts.HumidityPath,
		lightPath:  opts.LightPath,
		outputPath: opts.OutputPath,
	}, nil
}

func (h *LinuxHAL) ReadClimate(context.Context) (float64, float64, error) {
	t, err := readNumber(h.tempPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read temperature: %w", err)
	}
	rh, err := readNumber(h.humPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read humidity: %w", err)
	}
	return t / 1000, rh / 1000, nil
}

func (h *LinuxHAL) ReadLight(context.Context) (int, error) {
	v, err := readNumber(h.lightPath)
	if err != nil {
		return 0, fmt.Errorf("read light: %w", err)
	}
	return int(v), nil
}

func (h *LinuxHAL) SetOutput(on bool) error {
	if err := writeBool(h.outputPath, on); err != nil {
		return err
	}
	h.output.Store(on)
	return nil
}

func (h *LinuxHAL) Output() bool {
	return h.output.Load()
}

func (h *LinuxHAL) Reboot() error {
	log.Info("System is rebooting NOW...")
	syscall.Sync()
	return syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART)
}
