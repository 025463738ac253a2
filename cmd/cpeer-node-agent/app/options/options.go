package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/nodeagent/internal/nodeagent"
	"github.com/autopeer-io/nodeagent/pkg/app"
	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/options"
)

type AgentOptions struct {
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions   *options.HttpOptions   `json:"http" mapstructure:"http"`
	S3Options     *options.S3Options     `json:"s3" mapstructure:"s3"`
	DeviceOptions *options.DeviceOptions `json:"device" mapstructure:"device"`
	OTAOptions    *options.OTAOptions    `json:"ota" mapstructure:"ota"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*AgentOptions)(nil)
	_ app.LogOptionsProvider  = (*AgentOptions)(nil)
)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		MqttOptions:   options.NewMqttOptions(),
		HttpOptions:   options.NewHttpOptions(),
		S3Options:     options.NewS3Options(),
		DeviceOptions: options.NewDeviceOptions(),
		OTAOptions:    options.NewOTAOptions(),
		Log:           log.NewOptions(),
	}
	o.Log.Name = "cpeer-node-agent"

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.DeviceOptions.AddFlags(fss.FlagSet("device"))
	o.OTAOptions.AddFlags(fss.FlagSet("ota"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *AgentOptions) LogOptions() *log.Options {
	return o.Log
}

// Complete derives the MQTT client id from the device id when none is set.
func (o *AgentOptions) Complete() error {
	if o.MqttOptions.ClientID == "" && o.DeviceOptions.ID != "" {
		o.MqttOptions.ClientID = "cpeer-node-" + o.DeviceOptions.ID
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.DeviceOptions.Validate()...)
	errs = append(errs, o.OTAOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*nodeagent.Config, error) {
	return &nodeagent.Config{
		MqttOptions:   o.MqttOptions,
		HttpOptions:   o.HttpOptions,
		S3Options:     o.S3Options,
		DeviceOptions: o.DeviceOptions,
		OTAOptions:    o.OTAOptions,
	}, nil
}
