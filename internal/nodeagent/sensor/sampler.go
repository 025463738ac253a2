package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

// Reading is one sensor snapshot. It is published whole and never mutated.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Light       int       `json:"light"`
	Time        time.Time `json:"time"`
}

// Sampler is the single producer of readings.
type Sampler struct {
	sensors core.Sensors
	now     func() time.Time

	latest atomic.Pointer[Reading]
}

func NewSampler(sensors core.Sensors) *Sampler {
	return &Sampler{sensors: sensors, now: time.Now}
}

// Latest returns the most recent snapshot. ok is false until the first
// successful sample.
func (s *Sampler) Latest() (Reading, bool) {
	r := s.latest.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}

// Sample reads every sensor once and publishes a new snapshot. A sensor that
// fails keeps its previous value.
func (s *Sampler) Sample(ctx context.Context) {
	next := Reading{}
	if prev := s.latest.Load(); prev != nil {
		next = *prev
	}

	fresh := false

	if t, h, err := s.sensors.ReadClimate(ctx); err != nil {
		metrics.SensorErrorsTotal.WithLabelValues("climate").Inc()
		log.Warn("Failed to read climate sensor", "err", err)
	} else {
		next.Temperature, next.Humidity = t, h
		fresh = true
	}

	if l, err := s.sensors.ReadLight(ctx); err != nil {
		metrics.SensorErrorsTotal.WithLabelValues("light").Inc()
		log.Warn("Failed to read light sensor", "err", err)
	} else {
		next.Light = l
		fresh = true
	}

	if !fresh {
		return
	}

	next.Time = s.now()
	s.latest.Store(&next)

	metrics.SensorValue.WithLabelValues("temperature").Set(next.Temperature)
	metrics.SensorValue.WithLabelValues("humidity").Set(next.Humidity)
	metrics.SensorValue.WithLabelValues("light").Set(float64(next.Light))
}
