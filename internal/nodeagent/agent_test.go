package nodeagent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/ota"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/session"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/tasks"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

func testConfig(t *testing.T) *Config {
	dev := options.NewDeviceOptions()
	dev.ID = "node-1"
	dev.StateDir = t.TempDir()
	dev.Console = ""
	dev.ReportOutput = filepath.Join(t.TempDir(), "data.log")

	mqttOpts := options.NewMqttOptions()
	mqttOpts.Token = "test-token"

	httpOpts := options.NewHttpOptions()
	httpOpts.Addr = ""

	return &Config{
		MqttOptions:   mqttOpts,
		HttpOptions:   httpOpts,
		S3Options:     options.NewS3Options(),
		DeviceOptions: dev,
		OTAOptions:    options.NewOTAOptions(),
	}
}

func TestNewAgentWiring(t *testing.T) {
	a, err := testConfig(t).NewAgent()
	require.NoError(t, err)

	assert.Nil(t, a.server)
	assert.Nil(t, a.console)
	assert.False(t, a.Ready())

	snap, ok := a.Snapshot().(Snapshot)
	require.True(t, ok)
	assert.Equal(t, "node-1", snap.DeviceID)
	assert.Equal(t, ota.StateIdle, snap.Update)
	assert.Equal(t, "dht20-node", snap.Firmware.Title)
	assert.Empty(t, snap.Suspended)
	assert.Nil(t, snap.Reading)
}

func TestNewAgentWithConsoleAndObjectStore(t *testing.T) {
	cfg := testConfig(t)

	consolePath := filepath.Join(t.TempDir(), "console")
	require.NoError(t, os.WriteFile(consolePath, nil, 0o644))
	cfg.DeviceOptions.Console = consolePath

	cfg.S3Options.Endpoint = "127.0.0.1:9000"
	cfg.S3Options.AccessKeyID = "minio"
	cfg.S3Options.SecretAccessKey = "minio123"
	cfg.S3Options.UseSSL = false

	a, err := cfg.NewAgent()
	require.NoError(t, err)
	assert.NotNil(t, a.console)
}

func TestOpenConsole(t *testing.T) {
	in, err := openConsole("")
	require.NoError(t, err)
	assert.Nil(t, in)

	in, err = openConsole("-")
	require.NoError(t, err)
	assert.Equal(t, os.Stdin, in)

	_, err = openConsole(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type upLink struct{}

func (upLink) Up() bool                      { return true }
func (upLink) Connect(context.Context) error { return nil }

type stubPlatform struct{ connected bool }

func (p *stubPlatform) Connect(context.Context) error { p.connected = true; return nil }
func (p *stubPlatform) Connected() bool               { return p.connected }
func (p *stubPlatform) Generation() uint64            { return 1 }

type stubDevice struct{ aborts int }

func (d *stubDevice) Begin(int64) error                    { return nil }
func (d *stubDevice) Write([]byte) error                   { return nil }
func (d *stubDevice) Abort()                               { d.aborts++ }
func (d *stubDevice) Finalize(core.FirmwareIdentity) error { return nil }
func (d *stubDevice) Reboot() error                        { return nil }

// deadSource opens transfers whose every packet times out.
type deadSource struct{ reads int }

func (s *deadSource) Open(context.Context, core.FirmwareInfo) (ota.Transfer, error) { return s, nil }
func (s *deadSource) Close() error                                                 { return nil }
func (s *deadSource) ReadChunk(context.Context, int, int) ([]byte, error) {
	s.reads++
	return nil, errors.New("chunk timeout")
}

type nopReporter struct{}

func (nopReporter) ReportFirmwareState(context.Context, string, error) error { return nil }

func TestDownloadSuspendsWorkersUntilFailure(t *testing.T) {
	var sampled, reported, beats atomic.Int64
	ctrl := tasks.NewController()
	for name, n := range map[string]*atomic.Int64{TaskSensor: &sampled, TaskReport: &reported, TaskHeartbeat: &beats} {
		require.NoError(t, ctrl.Register(tasks.NewWorker(name, 2*time.Millisecond, func(context.Context) { n.Add(1) })))
	}
	handle, err := ctrl.Handle(TaskSensor, TaskReport)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = ctrl.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	require.Eventually(t, func() bool { return sampled.Load() > 0 && reported.Load() > 0 }, time.Second, time.Millisecond)

	current := core.FirmwareIdentity{Title: "fwA", Version: "1.0"}
	device, source := &stubDevice{}, &deadSource{}
	coordinator := ota.NewCoordinator(ota.Config{PacketSize: 8192, RetryBudget: 12},
		current, device, source, nil, nopReporter{}, handle)

	noop := func(context.Context) error { return nil }
	a := &Agent{
		session: session.NewManager(upLink{}, &stubPlatform{}, session.Actions{
			SubscribeRPC: noop, AnnounceFirmware: noop, SubscribeAttributes: noop,
		}),
		coordinator: coordinator,
		tasks:       ctrl,
	}

	pollUntil := func(state string) {
		t.Helper()
		for i := 0; i < 50 && coordinator.State() != state; i++ {
			require.NoError(t, a.pollOnce(context.Background()))
		}
		require.Equal(t, state, coordinator.State())
	}

	coordinator.Request(core.FirmwareInfo{
		FirmwareIdentity: core.FirmwareIdentity{Title: "fwA", Version: "2.0"},
		Size:             20000,
	})
	pollUntil(ota.StateDownloading)

	assert.ElementsMatch(t, []string{TaskSensor, TaskReport}, ctrl.Suspended())
	frozenSampled, frozenReported, beatsBefore := sampled.Load(), reported.Load(), beats.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozenSampled, sampled.Load(), "sensor halted while downloading")
	assert.Equal(t, frozenReported, reported.Load(), "report halted while downloading")
	assert.Greater(t, beats.Load(), beatsBefore, "heartbeat keeps running")

	pollUntil(ota.StateFailed)

	assert.Equal(t, 12, source.reads)
	assert.Equal(t, 1, device.aborts)
	assert.Equal(t, current, coordinator.Current())
	assert.Empty(t, ctrl.Suspended())
	require.Eventually(t, func() bool {
		return sampled.Load() > frozenSampled && reported.Load() > frozenReported
	}, time.Second, time.Millisecond)
}
