package core

import "context"

// RPCFunc handles one RPC method. params is the raw "params" value of the request.
type RPCFunc func(ctx context.Context, params []byte) (any, error)

// Platform is the remote telemetry platform as seen by the agent.
type Platform interface {
	// Connect establishes the session or fails within the connect timeout.
	Connect(ctx context.Context) error
	Connected() bool

	// Generation changes every time the session comes up.
	Generation() uint64

	// SubscribeRPC routes inbound calls to methods. Unknown methods are answered
	// by the platform adapter and never reach a handler.
	SubscribeRPC(ctx context.Context, methods map[string]RPCFunc) error

	SubscribeAttributes(ctx context.Context, handler HandlerFunc) error
	RequestAttributes(ctx context.Context, keys []string) ([]byte, error)

	SendFirmwareInfo(ctx context.Context, id FirmwareIdentity) error
	ReportFirmwareState(ctx context.Context, state string, cause error) error
	SendTelemetry(ctx context.Context, values any) error

	RequestFirmwareChunk(ctx context.Context, requestID string, index, size int) ([]byte, error)
}
