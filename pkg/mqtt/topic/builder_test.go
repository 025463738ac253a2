package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("", "")

	assert.Equal(t, "v1/devices/me/telemetry", b.Build("telemetry"))
	assert.Equal(t, "v1/devices/me/attributes/request/7", b.Build("attributes/request", "7"))
	assert.Equal(t, "v1/devices/me/rpc/request/+", b.Wildcard("rpc/request"))
	assert.Equal(t, "v2/fw/request/3/chunk/12", b.FirmwareChunk("request", "3", 12))
	assert.Equal(t, "v2/fw/response/+/chunk/+", b.FirmwareChunkWildcard("response"))

	custom := NewBuilder("v1/devices/me/", "fw/")
	assert.Equal(t, "v1/devices/me/telemetry", custom.Build("telemetry"))
	assert.Equal(t, "fw/request/1/chunk/0", custom.FirmwareChunk("request", "1", 0))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "42", LastSegment("v1/devices/me/rpc/request/42"))
	assert.Equal(t, "plain", LastSegment("plain"))
}

func TestParseFirmwareChunk(t *testing.T) {
	id, index, err := ParseFirmwareChunk("v2/fw/response/5/chunk/9")
	require.NoError(t, err)
	assert.Equal(t, "5", id)
	assert.Equal(t, 9, index)

	for _, bad := range []string{"v2/fw/response/5", "v2/fw/response/5/chunk/x", "v2/fw/response/5/chunk/-1", "chunk/1"} {
		_, _, err := ParseFirmwareChunk(bad)
		assert.Error(t, err, bad)
	}
}
