package report

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/sensor"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Readings provides the latest sensor snapshot.
type Readings interface {
	Latest() (sensor.Reading, bool)
}

// Printer writes one DATA line per call, the format read by the edge
// inference script: "DATA:<temperature>, <humidity>, <light>".
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	src Readings
}

func NewPrinter(out io.Writer, src Readings) *Printer {
	return &Printer{out: out, src: src}
}

func (p *Printer) Print(_ context.Context) {
	r, ok := p.src.Latest()
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(p.out, "DATA:%.2f, %.2f, %d\n", r.Temperature, r.Humidity, r.Light); err != nil {
		log.Warn("Failed to write data line", "err", err)
	}
}

// TelemetrySender publishes telemetry while a session is up.
type TelemetrySender interface {
	Connected() bool
	SendTelemetry(ctx context.Context, values any) error
}

// Telemetry publishes the latest reading.
type Telemetry struct {
	platform TelemetrySender
	src      Readings
	timeout  time.Duration
}

func NewTelemetry(platform TelemetrySender, src Readings, timeout time.Duration) *Telemetry {
	return &Telemetry{platform: platform, src: src, timeout: timeout}
}

type telemetry struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       int     `json:"light"`
}

func (t *Telemetry) Publish(ctx context.Context) {
	if !t.platform.Connected() {
		return
	}
	r, ok := t.src.Latest()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.platform.SendTelemetry(ctx, telemetry{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Light:       r.Light,
	})
	if err != nil {
		log.Warn("Failed to publish telemetry", "err", err)
	}
}

// Identity returns the running firmware.
type Identity interface {
	Current() core.FirmwareIdentity
}

// Heartbeat logs the running firmware.
func Heartbeat(id Identity) func(context.Context) {
	return func(context.Context) {
		cur := id.Current()
		log.Info("Firmware heartbeat", "title", cur.Title, "version", cur.Version)
	}
}
