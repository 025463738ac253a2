package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("127.0.0.1:9102"))
	assert.NoError(t, ValidateAddress(":8080"))
	assert.Error(t, ValidateAddress("127.0.0.1"))
	assert.Error(t, ValidateAddress("127.0.0.1:http2"))
	assert.Error(t, ValidateAddress("127.0.0.1:70000"))
}

func TestMqttOptionsRequireToken(t *testing.T) {
	o := NewMqttOptions()
	assert.Len(t, o.Validate(), 1)

	o.Token = "abc"
	assert.Empty(t, o.Validate())

	cfg := o.ToClientConfig()
	assert.Equal(t, "abc", cfg.Username)
	assert.EqualValues(t, 60, cfg.KeepAlive)
}

func TestMqttOptionsFlags(t *testing.T) {
	o := NewMqttOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--mqtt.token=tok", "--mqtt.qos=0", "--mqtt.connect-timeout=2s"}))
	assert.Equal(t, "tok", o.Token)
	assert.Equal(t, 0, o.QoS)
	assert.Equal(t, 2*time.Second, o.ConnectTimeout)
}

func TestOptionalSections(t *testing.T) {
	s3 := NewS3Options()
	assert.False(t, s3.Enabled())
	assert.Empty(t, s3.Validate())

	s3.Endpoint = "minio.local:9000"
	assert.NotEmpty(t, s3.Validate())

	h := NewHttpOptions()
	h.Addr = ""
	assert.False(t, h.Enabled())
	assert.Empty(t, h.Validate())
}

func TestDeviceAndOTADefaults(t *testing.T) {
	d := NewDeviceOptions()
	d.ID = "node-1"
	assert.Empty(t, d.Validate())

	d.SessionInterval = 0
	assert.Len(t, d.Validate(), 1)

	o := NewOTAOptions()
	assert.Equal(t, 8192, o.PacketSize)
	assert.Equal(t, 12, o.RetryBudget)
	assert.Equal(t, 5*time.Second, o.RequestTimeout)
	assert.Empty(t, o.Validate())
}

func TestPrefixedFlags(t *testing.T) {
	o := NewOTAOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs, "node.")
	assert.NotNil(t, fs.Lookup("node.ota.packet-size"))
}
