package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/nodeagent/pkg/mqtt"
	"github.com/autopeer-io/nodeagent/pkg/mqtt/topic"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the platform MQTT session.
type MqttOptions struct {
	Broker string `json:"broker" mapstructure:"broker"`

	// Token is the device access token. It is sent as the MQTT username.
	Token    string `json:"token" mapstructure:"token"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectDelay time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`
	QoS            int           `json:"qos" mapstructure:"qos"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// Topic roots, e.g. {TopicRoot}/telemetry and {FirmwareTopicRoot}/request/{id}/chunk/{n}.
	TopicRoot         string `json:"topic-root" mapstructure:"topic-root"`
	FirmwareTopicRoot string `json:"firmware-topic-root" mapstructure:"firmware-topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:            "tcp://app.coreiot.io:1883",
		KeepAlive:         60 * time.Second,
		ConnectTimeout:    5 * time.Second,
		ReconnectDelay:    3 * time.Second,
		CleanStart:        true,
		QoS:               1,
		TopicRoot:         topic.DefaultRoot,
		FirmwareTopicRoot: topic.DefaultFirmwareRoot,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Broker == "" {
		errors = append(errors, fmt.Errorf("--mqtt.broker is required"))
	} else if _, err := url.Parse(o.Broker); err != nil {
		errors = append(errors, fmt.Errorf("--mqtt.broker: %w", err))
	}
	if o.Token == "" {
		errors = append(errors, fmt.Errorf("--mqtt.token is required"))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errors = append(errors, fmt.Errorf("--mqtt.qos must be 0, 1 or 2"))
	}
	if o.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--mqtt.connect-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, join(prefixes, "mqtt.broker"), o.Broker, "The URL of the platform MQTT broker.")
	fs.StringVar(&o.Token, join(prefixes, "mqtt.token"), o.Token, "The device access token, sent as the MQTT username.")
	fs.StringVar(&o.Password, join(prefixes, "mqtt.password"), o.Password, "Optional MQTT password.")
	fs.StringVar(&o.ClientID, join(prefixes, "mqtt.client-id"), o.ClientID, "Explicit Client ID (optional, derived from the device id when empty).")

	fs.DurationVar(&o.KeepAlive, join(prefixes, "mqtt.keep-alive"), o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, join(prefixes, "mqtt.connect-timeout"), o.ConnectTimeout, "Timeout for establishing the MQTT session.")
	fs.DurationVar(&o.ReconnectDelay, join(prefixes, "mqtt.reconnect-delay"), o.ReconnectDelay, "Delay between automatic reconnect attempts.")
	fs.Uint32Var(&o.SessionExpiry, join(prefixes, "mqtt.session-expiry"), o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, join(prefixes, "mqtt.clean-start"), o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.IntVar(&o.QoS, join(prefixes, "mqtt.qos"), o.QoS, "QoS used for publishes and subscriptions.")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "mqtt.insecure-skip-verify"), o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, join(prefixes, "mqtt.topic-root"), o.TopicRoot, "Namespace of the device API topics.")
	fs.StringVar(&o.FirmwareTopicRoot, join(prefixes, "mqtt.firmware-topic-root"), o.FirmwareTopicRoot, "Namespace of the firmware chunk topics.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Token,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectDelay:     o.ReconnectDelay,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
