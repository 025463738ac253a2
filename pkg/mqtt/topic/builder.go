package topic

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultRoot is the device API namespace used by ThingsBoard-compatible platforms.
	DefaultRoot = "v1/devices/me"

	// DefaultFirmwareRoot is the namespace of the chunked firmware transfer protocol.
	DefaultFirmwareRoot = "v2/fw"

	// chunkSegment separates the request id from the chunk index in firmware topics.
	chunkSegment = "chunk"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for device topics (e.g., "v1/devices/me").
	root string

	// firmwareRoot is the base namespace for firmware chunk topics (e.g., "v2/fw").
	firmwareRoot string
}

// NewBuilder creates a new Builder. Empty roots fall back to the defaults.
func NewBuilder(root, firmwareRoot string) *Builder {
	if root == "" {
		root = DefaultRoot
	}
	if firmwareRoot == "" {
		firmwareRoot = DefaultFirmwareRoot
	}
	return &Builder{
		root:         strings.TrimSuffix(root, "/"),
		firmwareRoot: strings.TrimSuffix(firmwareRoot, "/"),
	}
}

// Build returns {root}/{segment}[/{id}...].
func (b *Builder) Build(segment string, ids ...string) string {
	parts := append([]string{b.root, segment}, ids...)
	return strings.Join(parts, "/")
}

// Wildcard returns {root}/{segment}/+, matching every request id under segment.
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// FirmwareChunk returns {firmwareRoot}/{segment}/{requestID}/chunk/{index}.
func (b *Builder) FirmwareChunk(segment, requestID string, index int) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", b.firmwareRoot, segment, requestID, chunkSegment, index)
}

// FirmwareChunkWildcard returns {firmwareRoot}/{segment}/+/chunk/+.
func (b *Builder) FirmwareChunkWildcard(segment string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", b.firmwareRoot, segment, Wildcard, chunkSegment, Wildcard)
}

// LastSegment returns the final level of a topic, which carries the request id
// on request/response topics.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// ParseFirmwareChunk extracts the request id and chunk index from a firmware
// chunk topic of the form .../{requestID}/chunk/{index}.
func ParseFirmwareChunk(topic string) (string, int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-2] != chunkSegment {
		return "", 0, fmt.Errorf("not a firmware chunk topic: %q", topic)
	}

	index, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("invalid chunk index in topic %q", topic)
	}

	return parts[len(parts)-3], index, nil
}
