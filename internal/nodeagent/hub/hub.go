package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/nodeagent/pkg/mqtt/topic"
)

// Hub is the platform session over MQTT. It implements core.Platform.
type Hub struct {
	mc     mqtt.Client
	topics *mqtttopic.Builder
	qos    int

	connectTimeout time.Duration
	requestTimeout time.Duration

	startMu sync.Mutex
	started bool

	// pending maps an outstanding request key to its reply channel.
	pending cache.Cache[string, chan []byte]
	seq     atomic.Uint64

	subMu      sync.Mutex
	responses  map[string]bool
	rpcMethods atomic.Pointer[map[string]core.RPCFunc]
}

var _ core.Platform = (*Hub)(nil)

type Config struct {
	QoS            int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

func New(client mqtt.Client, builder *mqtttopic.Builder, cfg Config) *Hub {
	return &Hub{
		mc:             client,
		topics:         builder,
		qos:            cfg.QoS,
		connectTimeout: cfg.ConnectTimeout,
		requestTimeout: cfg.RequestTimeout,
		pending:        cache.NewCache[string, chan []byte]().WithTTL(2 * cfg.RequestTimeout).WithMaxKeys(256),
		responses:      make(map[string]bool),
	}
}

// Connect starts the client on first use and waits for the connection. The
// client reconnects on its own afterwards; later calls only wait.
func (h *Hub) Connect(ctx context.Context) error {
	h.startMu.Lock()
	if !h.started {
		if err := h.mc.Start(ctx); err != nil {
			h.startMu.Unlock()
			return fmt.Errorf("start mqtt client: %w", err)
		}
		h.started = true
	}
	h.startMu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, h.connectTimeout)
	defer cancel()

	if err := h.mc.AwaitConnection(waitCtx); err != nil {
		return fmt.Errorf("await connection: %w", err)
	}
	return nil
}

func (h *Hub) Connected() bool {
	return h.mc.IsConnected()
}

func (h *Hub) Generation() uint64 {
	return h.mc.Generation()
}

func (h *Hub) Stop() {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if !h.started {
		return
	}

	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.mc.Disconnect(ctx)
}

// Send publishes payload on the topic of event.
func (h *Hub) Send(ctx context.Context, event core.EventType, qos int, payload []byte, ids ...string) error {
	topic, err := h.topic(event, ids...)
	if err != nil {
		return err
	}
	return h.mc.Publish(ctx, topic, qos, false, payload)
}

// SendJSON publishes v encoded as JSON.
func (h *Hub) SendJSON(ctx context.Context, event core.EventType, qos int, v any, ids ...string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Send(ctx, event, qos, payload, ids...)
}

func (h *Hub) SendTelemetry(ctx context.Context, values any) error {
	return h.SendJSON(ctx, core.EventTelemetry, h.qos, values)
}

// SendFirmwareInfo announces the running firmware.
func (h *Hub) SendFirmwareInfo(ctx context.Context, id core.FirmwareIdentity) error {
	return h.SendTelemetry(ctx, map[string]string{
		"current_fw_title":   id.Title,
		"current_fw_version": id.Version,
	})
}

// ReportFirmwareState publishes fw_state, with fw_error when cause is set.
func (h *Hub) ReportFirmwareState(ctx context.Context, state string, cause error) error {
	values := map[string]string{"fw_state": state}
	if cause != nil {
		values["fw_error"] = cause.Error()
	}
	return h.SendTelemetry(ctx, values)
}

func (h *Hub) SubscribeAttributes(ctx context.Context, handler core.HandlerFunc) error {
	topic, err := h.topic(core.EventSharedAttributes)
	if err != nil {
		return err
	}
	return h.mc.Subscribe(ctx, topic, h.qos, func(c context.Context, _ string, payload []byte) {
		if err := handler(c, payload); err != nil {
			log.Error(err, "Handler execution failed", "topic", topic)
		}
	})
}
