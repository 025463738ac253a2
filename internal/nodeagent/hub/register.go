package hub

import (
	"fmt"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/pkg/mqtt/paths"
)

var events = make(map[core.EventType]string)

// topic builds the device topic of event.
func (h *Hub) topic(event core.EventType, ids ...string) (string, error) {
	segment, ok := events[event]
	if !ok {
		return "", fmt.Errorf("unmapped event: %s", event)
	}
	return h.topics.Build(segment, ids...), nil
}

func init() {
	events[core.EventTelemetry] = paths.Telemetry
	events[core.EventSharedAttributes] = paths.Attributes
	events[core.EventAttributeRequest] = paths.AttributesRequest
	events[core.EventAttributeResponse] = paths.AttributesResponse
	events[core.EventRPCRequest] = paths.RPCRequest
	events[core.EventRPCResponse] = paths.RPCResponse
	events[core.EventFirmwareChunkReq] = paths.FirmwareRequest
	events[core.EventFirmwareChunkReply] = paths.FirmwareResponse
}
