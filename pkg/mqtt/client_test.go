package mqtt

import (
	"context"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"v1/devices/me/attributes", "v1/devices/me/attributes", true},
		{"v1/devices/me/attributes", "v1/devices/me/attributes/response/1", false},
		{"v1/devices/me/rpc/request/+", "v1/devices/me/rpc/request/42", true},
		{"v1/devices/me/rpc/request/+", "v1/devices/me/rpc/request", false},
		{"v2/fw/response/+/chunk/+", "v2/fw/response/3/chunk/10", true},
		{"v2/fw/response/+/chunk/+", "v2/fw/response/3/chunk", false},
		{"v1/devices/#", "v1/devices/me/telemetry", true},
		{"v1/+/me", "v1/devices/me/telemetry", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic))
		})
	}
}

func TestTopicFilterStripsSharedPrefix(t *testing.T) {
	assert.Equal(t, "a/b/+", topicFilter("$share/group/a/b/+"))
	assert.Equal(t, "a/b", topicFilter("a/b"))
}

func TestRouterDispatchesInline(t *testing.T) {
	c := &pahoClient{}

	var got []string
	c.subscriptions.Store("v1/devices/me/rpc/request/+", subscriptionEntry{
		topic: "v1/devices/me/rpc/request/+",
		handler: func(_ context.Context, topic string, payload []byte) {
			got = append(got, topic+"="+string(payload))
		},
	})
	c.subscriptions.Store("v1/devices/me/attributes", subscriptionEntry{
		topic: "v1/devices/me/attributes",
		handler: func(context.Context, string, []byte) {
			t.Fatal("attribute handler must not see rpc traffic")
		},
	})

	for _, id := range []string{"1", "2"} {
		ok, err := c.router(paho.PublishReceived{Packet: &paho.Publish{
			Topic:   "v1/devices/me/rpc/request/" + id,
			Payload: []byte(id),
		}})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	// Handlers ran before router returned, in arrival order.
	assert.Equal(t, []string{"v1/devices/me/rpc/request/1=1", "v1/devices/me/rpc/request/2=2"}, got)
}

func TestConnectionStateTracking(t *testing.T) {
	c := &pahoClient{}
	assert.False(t, c.IsConnected())
	assert.Zero(t, c.Generation())

	c.onConnectionUp(nil, &paho.Connack{})
	assert.True(t, c.IsConnected())
	assert.Equal(t, uint64(1), c.Generation())

	c.onServerDisconnect(&paho.Disconnect{ReasonCode: 0x8b})
	assert.False(t, c.IsConnected())

	c.onConnectionUp(nil, &paho.Connack{})
	assert.Equal(t, uint64(2), c.Generation())
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "tcp://app.coreiot.io:1883"
	assert.NoError(t, cfg.Validate())

	cfg.BrokerURL = "http://app.coreiot.io"
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "tcp://app.coreiot.io:1883"
	cfg.WillQoS = 3
	assert.Error(t, cfg.Validate())
}

func TestNewClientAppliesDefaults(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "tcp://localhost:1883"}
	_, err := NewClient(cfg)
	require.NoError(t, err)

	assert.EqualValues(t, 60, cfg.KeepAlive)
	assert.NotZero(t, cfg.ConnectTimeout)
	assert.NotZero(t, cfg.ReconnectDelay)
}
