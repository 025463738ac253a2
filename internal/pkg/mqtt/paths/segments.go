package paths

// Topic segments of the device API.
// These constants define the routing contract between the platform and the node agent.

// Downstream: Platform -> Device
const (
	// RPCRequest carries server-side RPC calls.
	// Payload: { "method": "setSwitch", "params": true }
	// Pattern: {root}/rpc/request/{requestID}
	RPCRequest = "rpc/request"

	// AttributesResponse answers an attribute request.
	// Payload: { "shared": { "fw_title": "...", "fw_version": "..." } }
	// Pattern: {root}/attributes/response/{requestID}
	AttributesResponse = "attributes/response"

	// FirmwareResponse carries one firmware chunk as raw bytes.
	// Pattern: {firmwareRoot}/response/{requestID}/chunk/{index}
	FirmwareResponse = "response"
)

// Upstream: Device -> Platform
const (
	// Telemetry carries time-series values, including firmware state reports.
	// Pattern: {root}/telemetry
	Telemetry = "telemetry"

	// RPCResponse answers a server-side RPC call.
	// Pattern: {root}/rpc/response/{requestID}
	RPCResponse = "rpc/response"

	// AttributesRequest asks for the current value of shared attributes.
	// Payload: { "sharedKeys": "fw_title,fw_version" }
	// Pattern: {root}/attributes/request/{requestID}
	AttributesRequest = "attributes/request"

	// FirmwareRequest asks for one firmware chunk. The payload is the chunk size in bytes.
	// Pattern: {firmwareRoot}/request/{requestID}/chunk/{index}
	FirmwareRequest = "request"
)

// Bidirectional
const (
	// Attributes receives shared attribute pushes and accepts client attribute updates.
	// Pattern: {root}/attributes
	Attributes = "attributes"
)
