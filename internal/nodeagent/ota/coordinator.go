package ota

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"sync"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/session"
	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/nodeagent/internal/pkg/util/fsm"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// ErrRestarted is returned by Step once a new image has been committed and the
// device is restarting. The caller must stop.
var ErrRestarted = errors.New("device restarting into new firmware")

// Reporter publishes the update state to the platform.
type Reporter interface {
	ReportFirmwareState(ctx context.Context, state string, cause error) error
}

// Pauser suspends and resumes the workers that must not run during a transfer.
type Pauser interface {
	Suspend(ctx context.Context) error
	Resume()
}

// Metadata looks up the transfer details of a firmware identity when a push
// carried only the title and version.
type Metadata interface {
	FirmwareInfo(ctx context.Context, id core.FirmwareIdentity) (core.FirmwareInfo, error)
}

// Device is the part of the HAL the coordinator drives.
type Device interface {
	core.Flasher
	Reboot() error
}

type Config struct {
	// PacketSize is the number of bytes requested per packet.
	PacketSize int
	// RetryBudget is the number of packet failures tolerated per attempt.
	RetryBudget int
}

// Coordinator runs the firmware update state machine. Request may be called
// from any goroutine; Step must only be called from the session polling task.
type Coordinator struct {
	cfg      Config
	device   Device
	source   Source
	metadata Metadata
	reporter Reporter
	tasks    Pauser

	machine *machine

	mu      sync.Mutex
	current core.FirmwareIdentity
	pending *core.FirmwareInfo

	// Owned by Step.
	desired  *core.FirmwareInfo
	transfer Transfer
	hasher   hash.Hash
	done     int64
	index    int
	failures int
	paused   bool
}

// NewCoordinator builds a coordinator. metadata may be nil, in which case pushes
// must carry fw_size themselves.
func NewCoordinator(cfg Config, current core.FirmwareIdentity, device Device, source Source, metadata Metadata, reporter Reporter, tasks Pauser) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		device:   device,
		source:   source,
		metadata: metadata,
		reporter: reporter,
		tasks:    tasks,
		current:  current,
	}
	c.machine = newMachine(c)
	observeState("", StateIdle)
	return c
}

// State returns the current update state.
func (c *Coordinator) State() string {
	return c.machine.Current()
}

// Current returns the identity of the running firmware.
func (c *Coordinator) Current() core.FirmwareIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Progress returns the bytes transferred in the current attempt and the image size.
func (c *Coordinator) Progress() (done, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desired == nil {
		return 0, 0
	}
	return c.done, c.desired.Size
}

// Request queues a desired firmware. Only the latest request is kept; it is
// consumed on the next Step and ignored unless the machine is idle or failed.
func (c *Coordinator) Request(info core.FirmwareInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &info
}

func (c *Coordinator) take() *core.FirmwareInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}

// Step advances the machine by at most one transition or one packet. again
// reports whether Step wants to be called again without waiting for the next poll.
func (c *Coordinator) Step(ctx context.Context, st session.State) (again bool, err error) {
	switch c.machine.Current() {
	case StateIdle:
		return c.stepIdle(ctx, st)
	case StateInfoPending:
		c.dropPending()
		if !st.Connected() {
			return false, c.fire(ctx, EventAbort, st)
		}
		if err := c.fire(ctx, EventAnnounced, st); err != nil {
			return false, err
		}
		return c.machine.Current() == StateUpdateRequested, nil
	case StateUpdateRequested:
		c.dropPending()
		if !st.Connected() {
			return false, c.fire(ctx, EventAbort, st)
		}
		return c.stepStart(ctx, st)
	case StateDownloading:
		c.dropPending()
		return c.stepDownload(ctx, st)
	case StateFailed:
		info := c.take()
		if info == nil {
			return false, nil
		}
		if !info.Valid() {
			log.Warn("Discarding incomplete firmware identity", "title", info.Title, "version", info.Version)
			return false, nil
		}
		log.Info("Firmware re-requested after failure", "firmware", info.FirmwareIdentity.String())
		c.setDesired(info)
		return true, c.fire(ctx, EventReset, st)
	}

	return false, nil
}

func (c *Coordinator) stepIdle(ctx context.Context, st session.State) (bool, error) {
	if info := c.take(); info != nil {
		if !info.Valid() {
			log.Warn("Discarding incomplete firmware identity", "title", info.Title, "version", info.Version)
		} else {
			c.setDesired(info)
		}
	}

	if c.desired == nil {
		return false, nil
	}

	if c.desired.FirmwareIdentity == c.Current() {
		log.Info("Firmware is up to date", "firmware", c.desired.FirmwareIdentity.String())
		c.setDesired(nil)
		return false, nil
	}

	if err := c.fire(ctx, EventRequest, st); err != nil {
		return false, err
	}
	return c.machine.Current() == StateInfoPending, nil
}

func (c *Coordinator) stepStart(ctx context.Context, st session.State) (bool, error) {
	info, err := c.resolve(ctx)
	if err != nil {
		log.Warn("Firmware transfer not accepted, will retry", "firmware", c.desired.FirmwareIdentity.String(), "err", err)
		return false, nil
	}

	transfer, err := c.source.Open(ctx, info)
	if err != nil {
		log.Warn("Firmware transfer not accepted, will retry", "firmware", info.FirmwareIdentity.String(), "err", err)
		return false, nil
	}
	if err := c.device.Begin(info.Size); err != nil {
		_ = transfer.Close()
		log.Warn("Failed to prepare image staging, will retry", "firmware", info.FirmwareIdentity.String(), "err", err)
		return false, nil
	}

	algorithm := info.ChecksumAlgorithm
	if algorithm == "" {
		algorithm = defaultAlgorithm
	}
	hasher, err := newHasher(algorithm)
	if err != nil {
		// resolve() already accepted the algorithm.
		_ = transfer.Close()
		c.device.Abort()
		return false, err
	}

	c.mu.Lock()
	c.desired = &info
	c.transfer = transfer
	c.hasher = hasher
	c.done = 0
	c.index = 0
	c.mu.Unlock()

	if err := c.fire(ctx, EventStart, st); err != nil {
		return false, err
	}
	return true, nil
}

// resolve completes the desired firmware with its size and checksum. Metadata
// that cannot be transferred keeps the start from being accepted.
func (c *Coordinator) resolve(ctx context.Context) (core.FirmwareInfo, error) {
	info := *c.desired
	if info.Size <= 0 && c.metadata != nil {
		found, err := c.metadata.FirmwareInfo(ctx, info.FirmwareIdentity)
		if err != nil {
			return info, fmt.Errorf("fetch firmware metadata: %w", err)
		}
		if found.FirmwareIdentity != info.FirmwareIdentity {
			return info, fmt.Errorf("platform offers %s instead", found.FirmwareIdentity.String())
		}
		if found.URL == "" {
			found.URL = info.URL
		}
		info = found
	}
	if err := validate(info); err != nil {
		return info, err
	}
	return info, nil
}

func (c *Coordinator) stepDownload(ctx context.Context, st session.State) (bool, error) {
	// No packet is requested before the workers are confirmed halted.
	if !c.paused {
		if err := c.tasks.Suspend(ctx); err != nil {
			log.Warn("Workers not suspended yet, holding the transfer", "err", err)
			return false, nil
		}
		c.paused = true
	}

	total := c.desired.Size
	if c.done >= total {
		return false, c.finish(ctx, st)
	}

	data, err := c.transfer.ReadChunk(ctx, c.index, c.cfg.PacketSize)
	if err == nil {
		err = c.accept(data, total)
	}
	if err != nil {
		c.failures++
		metrics.FirmwarePacketFailuresTotal.Inc()
		log.Warn("Firmware packet failed",
			"index", c.index, "failures", c.failures, "budget", c.cfg.RetryBudget, "err", err)
		if c.failures >= c.cfg.RetryBudget {
			return false, c.fire(ctx, EventFail, st,
				fmt.Errorf("retry budget exhausted after %d packet failures: %w", c.failures, err))
		}
		return false, nil
	}

	c.mu.Lock()
	c.done += int64(len(data))
	c.index++
	done := c.done
	c.mu.Unlock()

	metrics.FirmwareBytes.WithLabelValues("done").Set(float64(done))
	log.Info("Firmware download progress", "done", done, "total", total)
	return true, nil
}

// accept checks a packet and hands it to the flasher.
func (c *Coordinator) accept(data []byte, total int64) error {
	want := min(int64(c.cfg.PacketSize), total-c.done)
	if int64(len(data)) != want {
		return fmt.Errorf("packet %d: got %d bytes, want %d", c.index, len(data), want)
	}
	if err := c.device.Write(data); err != nil {
		return fmt.Errorf("write packet %d: %w", c.index, err)
	}
	c.hasher.Write(data)
	return nil
}

func (c *Coordinator) finish(ctx context.Context, st session.State) error {
	info := *c.desired
	c.report(ctx, core.FirmwareStateDownloaded, nil)

	if err := verify(c.hasher, info.Checksum); err != nil {
		return c.fire(ctx, EventFail, st, err)
	}
	c.report(ctx, core.FirmwareStateVerified, nil)

	if err := c.device.Finalize(info.FirmwareIdentity); err != nil {
		return c.fire(ctx, EventFail, st, fmt.Errorf("finalize image: %w", err))
	}

	return c.fire(ctx, EventComplete, st)
}

func (c *Coordinator) enterInfoPending(_ context.Context, _ *fsm.Event) error {
	c.failures = 0
	log.Info("Firmware update pending", "current", c.Current().String(), "desired", c.desired.FirmwareIdentity.String())
	return nil
}

func (c *Coordinator) enterDownloading(ctx context.Context, _ *fsm.Event) error {
	metrics.FirmwareBytes.WithLabelValues("done").Set(0)
	metrics.FirmwareBytes.WithLabelValues("total").Set(float64(c.desired.Size))
	c.report(ctx, core.FirmwareStateDownloading, nil)

	if err := c.tasks.Suspend(ctx); err != nil {
		log.Warn("Failed to suspend workers, retrying before the first packet", "err", err)
		return nil
	}
	c.paused = true
	return nil
}

func (c *Coordinator) enterSucceeded(ctx context.Context, _ *fsm.Event) error {
	c.closeTransfer()

	c.mu.Lock()
	c.current = c.desired.FirmwareIdentity
	current := c.current
	c.mu.Unlock()

	log.Info("Firmware update committed, restarting", "firmware", current.String())
	c.report(ctx, core.FirmwareStateUpdating, nil)

	if err := c.device.Reboot(); err != nil {
		return fmt.Errorf("%w: reboot: %w", ErrRestarted, err)
	}
	return ErrRestarted
}

func (c *Coordinator) enterFailed(ctx context.Context, e *fsm.Event) error {
	cause := causeArg(e)
	if cause == nil {
		cause = errors.New("unknown error")
	}

	c.device.Abort()
	c.closeTransfer()

	// Workers are back before the machine can reach idle again.
	c.tasks.Resume()
	c.paused = false

	log.Error(cause, "Firmware update failed", "firmware", c.desired.FirmwareIdentity.String(), "running", c.Current().String())
	c.report(ctx, core.FirmwareStateFailed, cause)
	return nil
}

func (c *Coordinator) enterIdle(_ context.Context, e *fsm.Event) error {
	if e.Event == EventAbort {
		log.Info("Session lost before the download started, waiting for reconnect")
	}
	return nil
}

// fire triggers event and filters refused or no-op transitions.
func (c *Coordinator) fire(ctx context.Context, event string, args ...any) error {
	err := c.machine.Event(ctx, event, args...)
	if fsmutil.IsRealError(err) {
		return err
	}
	return nil
}

func (c *Coordinator) guardRequest(_ context.Context, e *fsm.Event) (bool, error) {
	st := sessionArg(e)
	if !st.Connected() {
		return false, nil
	}
	return c.desired != nil && c.desired.FirmwareIdentity != c.Current(), nil
}

func (c *Coordinator) setDesired(info *core.FirmwareInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desired = info
	c.done = 0
}

func (c *Coordinator) dropPending() {
	if info := c.take(); info != nil {
		log.Info("Update in progress, ignoring firmware push", "firmware", info.FirmwareIdentity.String(), "state", c.machine.Current())
	}
}

func (c *Coordinator) closeTransfer() {
	if c.transfer == nil {
		return
	}
	if err := c.transfer.Close(); err != nil {
		log.Warn("Failed to close firmware transfer", "err", err)
	}
	c.transfer = nil
}

func (c *Coordinator) report(ctx context.Context, state string, cause error) {
	if err := c.reporter.ReportFirmwareState(ctx, state, cause); err != nil {
		log.Warn("Failed to report firmware state", "state", state, "err", err)
	}
}

func observeState(_, dst string) {
	for _, s := range States {
		v := 0.0
		if s == dst {
			v = 1
		}
		metrics.UpdateState.WithLabelValues(s).Set(v)
	}
}
