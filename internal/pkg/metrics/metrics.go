package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nodeagent"

// Registry holds every node agent collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// SessionConnected is 1 while the platform session is established.
	SessionConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_connected",
			Help:      "Platform session status (1=connected, 0=disconnected).",
		},
	)

	// SessionConnectsTotal counts transitions into the connected phase.
	SessionConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connects_total",
			Help:      "Number of times the platform session was (re)established.",
		},
	)

	// SetupActionsTotal counts one-time setup actions by outcome.
	SetupActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setup_actions_total",
			Help:      "One-time session setup actions by action and result.",
		},
		[]string{"action", "result"}, // action: rpc_subscribe/firmware_announce/attributes_subscribe
	)

	// RPCRequestsTotal counts inbound RPC calls.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Inbound RPC calls by method and result.",
		},
		[]string{"method", "result"},
	)

	// UpdateState exposes the firmware update state as a one-hot gauge.
	UpdateState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "firmware_update_state",
			Help:      "Current firmware update state (1 for the active state).",
		},
		[]string{"state"},
	)

	// FirmwareBytes tracks transfer progress.
	FirmwareBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "firmware_transfer_bytes",
			Help:      "Firmware transfer progress in bytes.",
		},
		[]string{"kind"}, // kind: done/total
	)

	// FirmwarePacketFailuresTotal counts failed chunk transfers.
	FirmwarePacketFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firmware_packet_failures_total",
			Help:      "Failed firmware packet transfers.",
		},
	)

	// TaskSuspended is 1 while a worker is suspended.
	TaskSuspended = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_suspended",
			Help:      "Worker suspension status (1=suspended).",
		},
		[]string{"task"},
	)

	// SensorValue exposes the latest sensor snapshot.
	SensorValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Latest sensor reading by kind.",
		},
		[]string{"kind"}, // kind: temperature/humidity/light
	)

	// SensorErrorsTotal counts failed sensor reads.
	SensorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Failed sensor reads by sensor.",
		},
		[]string{"sensor"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SessionConnected,
		SessionConnectsTotal,
		SetupActionsTotal,
		RPCRequestsTotal,
		UpdateState,
		FirmwareBytes,
		FirmwarePacketFailuresTotal,
		TaskSuspended,
		SensorValue,
		SensorErrorsTotal,
	)
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
