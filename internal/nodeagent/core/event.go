package core

type EventType string

const (
	EventTelemetry          EventType = "telemetry"
	EventSharedAttributes   EventType = "attributes.shared"
	EventAttributeRequest   EventType = "attributes.request"
	EventAttributeResponse  EventType = "attributes.response"
	EventRPCRequest         EventType = "rpc.request"
	EventRPCResponse        EventType = "rpc.response"
	EventFirmwareChunkReq   EventType = "firmware.chunk.request"
	EventFirmwareChunkReply EventType = "firmware.chunk.response"
)
