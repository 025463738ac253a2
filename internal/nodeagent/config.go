package nodeagent

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/attributes"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/console"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/hal"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/hub"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/link"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/ota"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/report"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/rpc"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/sensor"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/server"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/session"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/storage"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/tasks"
	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/nodeagent/pkg/mqtt/topic"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

// Worker names.
const (
	TaskSensor    = "sensor"
	TaskReport    = "report"
	TaskTelemetry = "telemetry"
	TaskConsole   = "console"
	TaskHeartbeat = "heartbeat"
)

type Config struct {
	MqttOptions   *options.MqttOptions
	HttpOptions   *options.HttpOptions
	S3Options     *options.S3Options
	DeviceOptions *options.DeviceOptions
	OTAOptions    *options.OTAOptions
}

func (cfg *Config) NewAgent() (*Agent, error) {
	dev := cfg.DeviceOptions

	board, err := hal.NewHAL(dev)
	if err != nil {
		return nil, fmt.Errorf("init hal: %w", err)
	}

	mqttClient, topicBuilder, err := cfg.initMqttClientAndTopicBuilder(dev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	platform := hub.New(mqttClient, topicBuilder, hub.Config{
		QoS:            cfg.MqttOptions.QoS,
		ConnectTimeout: cfg.MqttOptions.ConnectTimeout,
		RequestTimeout: cfg.OTAOptions.RequestTimeout,
	})

	source, err := cfg.initFirmwareSource(platform)
	if err != nil {
		return nil, err
	}

	sampler := sensor.NewSampler(board)
	a := &Agent{
		deviceID: dev.ID,
		interval: dev.SessionInterval,
		board:    board,
		hub:      platform,
		sampler:  sampler,
		tasks:    tasks.NewController(),
	}

	out, err := openReportOutput(dev.ReportOutput)
	if err != nil {
		return nil, err
	}
	printer := report.NewPrinter(out, sampler)
	telemetry := report.NewTelemetry(platform, sampler, cfg.OTAOptions.RequestTimeout)

	paused := []string{TaskSensor, TaskReport, TaskTelemetry}
	workers := []*tasks.Worker{
		tasks.NewWorker(TaskSensor, dev.SampleInterval, sampler.Sample),
		tasks.NewWorker(TaskReport, dev.ReportInterval, printer.Print),
		tasks.NewWorker(TaskTelemetry, dev.TelemetryInterval, telemetry.Publish),
	}

	in, err := openConsole(dev.Console)
	if err != nil {
		return nil, err
	}
	if in != nil {
		a.console = console.New(in, board)
		workers = append(workers, tasks.NewWorker(TaskConsole, dev.ConsoleInterval, a.console.Drain))
		paused = append(paused, TaskConsole)
	}

	for _, w := range workers {
		if err := a.tasks.Register(w); err != nil {
			return nil, err
		}
	}

	handle, err := a.tasks.Handle(paused...)
	if err != nil {
		return nil, err
	}

	a.coordinator = ota.NewCoordinator(ota.Config{
		PacketSize:  cfg.OTAOptions.PacketSize,
		RetryBudget: cfg.OTAOptions.RetryBudget,
	}, board.FirmwareIdentity(), board, source,
		attributes.NewResolver(platform, cfg.OTAOptions.RequestTimeout), platform, handle)

	// The heartbeat keeps running during downloads.
	if err := a.tasks.Register(tasks.NewWorker(TaskHeartbeat, dev.HeartbeatInterval, report.Heartbeat(a.coordinator))); err != nil {
		return nil, err
	}

	dispatcher := rpc.NewDispatcher(board)
	watcher := attributes.NewWatcher(platform, a.coordinator, cfg.OTAOptions.AttributeKeys, cfg.OTAOptions.RequestTimeout)
	timeout := cfg.OTAOptions.RequestTimeout

	a.session = session.NewManager(
		link.NewMonitor(dev.Interface, dev.LinkAttempts),
		platform,
		session.Actions{
			SubscribeRPC: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return dispatcher.Subscribe(ctx, platform)
			},
			AnnounceFirmware: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return platform.SendFirmwareInfo(ctx, a.coordinator.Current())
			},
			SubscribeAttributes: watcher.Subscribe,
		},
	)

	if cfg.HttpOptions.Enabled() {
		a.server = server.NewServer(cfg.HttpOptions, a, metrics.Registry)
	}

	return a, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder(deviceID string) (mqtt.Client, *mqtttopic.Builder, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot, cfg.MqttOptions.FirmwareTopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-node-%s", deviceID)
	}

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}

// initFirmwareSource serves images over the platform session, and s3:// URLs
// from the object store when one is configured.
func (cfg *Config) initFirmwareSource(platform *hub.Hub) (ota.Source, error) {
	router := ota.NewRouter(ota.NewChunkSource(platform))

	if cfg.S3Options.Enabled() {
		provider, err := storage.NewMinIOProvider(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		router.Handle(storage.Scheme, storage.NewSource(provider, cfg.S3Options.BucketName))
		log.Info("Object store firmware source enabled", "endpoint", cfg.S3Options.Endpoint)
	}

	return router, nil
}

func openReportOutput(path string) (io.Writer, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report output: %w", err)
	}
	return f, nil
}

func openConsole(path string) (io.Reader, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open console: %w", err)
	}
	return f, nil
}
