package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DeviceOptions)(nil)

// DeviceOptions describes the board: identity, hardware endpoints and worker cadence.
type DeviceOptions struct {
	// ID identifies the device in logs and is the default MQTT client id.
	ID string `json:"id" mapstructure:"id"`

	// Factory firmware identity, used until an update has been committed.
	FirmwareTitle   string `json:"firmware-title" mapstructure:"firmware-title"`
	FirmwareVersion string `json:"firmware-version" mapstructure:"firmware-version"`

	// StateDir keeps the committed firmware identity and the staged image.
	// Empty selects a temporary directory.
	StateDir string `json:"state-dir" mapstructure:"state-dir"`

	// Interface is the network interface gating the link. Empty accepts any
	// non-loopback interface.
	Interface    string `json:"interface" mapstructure:"interface"`
	LinkAttempts uint64 `json:"link-attempts" mapstructure:"link-attempts"`

	// Hardware endpoints (sysfs attribute files on Linux).
	TemperaturePath string `json:"temperature-path" mapstructure:"temperature-path"`
	HumidityPath    string `json:"humidity-path" mapstructure:"humidity-path"`
	LightPath       string `json:"light-path" mapstructure:"light-path"`
	OutputPath      string `json:"output-path" mapstructure:"output-path"`

	// Console is the line-oriented command input: "-" for stdin, a device path,
	// or empty to disable.
	Console string `json:"console" mapstructure:"console"`

	// ReportOutput receives the DATA lines: "-" for stdout or a file/device path.
	ReportOutput string `json:"report-output" mapstructure:"report-output"`

	SessionInterval   time.Duration `json:"session-interval" mapstructure:"session-interval"`
	SampleInterval    time.Duration `json:"sample-interval" mapstructure:"sample-interval"`
	ReportInterval    time.Duration `json:"report-interval" mapstructure:"report-interval"`
	TelemetryInterval time.Duration `json:"telemetry-interval" mapstructure:"telemetry-interval"`
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	ConsoleInterval   time.Duration `json:"console-interval" mapstructure:"console-interval"`
}

// NewDeviceOptions creates a DeviceOptions with the board defaults.
func NewDeviceOptions() *DeviceOptions {
	id, _ := os.Hostname()
	return &DeviceOptions{
		ID:                id,
		FirmwareTitle:     "dht20-node",
		FirmwareVersion:   "1.0.0",
		LinkAttempts:      10,
		TemperaturePath:   "/sys/bus/iio/devices/iio:device0/in_temp_input",
		HumidityPath:      "/sys/bus/iio/devices/iio:device0/in_humidityrelative_input",
		LightPath:         "/sys/bus/iio/devices/iio:device1/in_voltage0_raw",
		OutputPath:        "/sys/class/leds/user-led/brightness",
		Console:           "-",
		ReportOutput:      "-",
		SessionInterval:   2 * time.Second,
		SampleInterval:    time.Second,
		ReportInterval:    time.Second,
		TelemetryInterval: 5 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		ConsoleInterval:   10 * time.Millisecond,
	}
}

func (o *DeviceOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.ID == "" {
		errors = append(errors, fmt.Errorf("--device.id is required"))
	}
	if o.FirmwareTitle == "" || o.FirmwareVersion == "" {
		errors = append(errors, fmt.Errorf("--device.firmware-title and --device.firmware-version are required"))
	}

	intervals := map[string]time.Duration{
		"session-interval":   o.SessionInterval,
		"sample-interval":    o.SampleInterval,
		"report-interval":    o.ReportInterval,
		"telemetry-interval": o.TelemetryInterval,
		"heartbeat-interval": o.HeartbeatInterval,
		"console-interval":   o.ConsoleInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			errors = append(errors, fmt.Errorf("--device.%s must be positive", name))
		}
	}

	return errors
}

func (o *DeviceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, join(prefixes, "device.id"), o.ID, "Device identifier, used as the default MQTT client id.")
	fs.StringVar(&o.FirmwareTitle, join(prefixes, "device.firmware-title"), o.FirmwareTitle, "Factory firmware title.")
	fs.StringVar(&o.FirmwareVersion, join(prefixes, "device.firmware-version"), o.FirmwareVersion, "Factory firmware version.")
	fs.StringVar(&o.StateDir, join(prefixes, "device.state-dir"), o.StateDir, "Directory for the committed firmware identity and staged images.")
	fs.StringVar(&o.Interface, join(prefixes, "device.interface"), o.Interface, "Network interface that must be up before connecting. Empty accepts any.")
	fs.Uint64Var(&o.LinkAttempts, join(prefixes, "device.link-attempts"), o.LinkAttempts, "Link checks per bring-up attempt.")

	fs.StringVar(&o.TemperaturePath, join(prefixes, "device.temperature-path"), o.TemperaturePath, "Temperature input in millidegrees Celsius.")
	fs.StringVar(&o.HumidityPath, join(prefixes, "device.humidity-path"), o.HumidityPath, "Relative humidity input in milli-percent.")
	fs.StringVar(&o.LightPath, join(prefixes, "device.light-path"), o.LightPath, "Raw ADC reading of the light sensor.")
	fs.StringVar(&o.OutputPath, join(prefixes, "device.output-path"), o.OutputPath, "Digital output driven by setSwitch and the console.")

	fs.StringVar(&o.Console, join(prefixes, "device.console"), o.Console, "Console input: '-' for stdin, a device path, or empty to disable.")
	fs.StringVar(&o.ReportOutput, join(prefixes, "device.report-output"), o.ReportOutput, "Destination of DATA lines: '-' for stdout or a path.")

	fs.DurationVar(&o.SessionInterval, join(prefixes, "device.session-interval"), o.SessionInterval, "Session polling period.")
	fs.DurationVar(&o.SampleInterval, join(prefixes, "device.sample-interval"), o.SampleInterval, "Sensor sampling period.")
	fs.DurationVar(&o.ReportInterval, join(prefixes, "device.report-interval"), o.ReportInterval, "DATA line period.")
	fs.DurationVar(&o.TelemetryInterval, join(prefixes, "device.telemetry-interval"), o.TelemetryInterval, "Telemetry publish period.")
	fs.DurationVar(&o.HeartbeatInterval, join(prefixes, "device.heartbeat-interval"), o.HeartbeatInterval, "Firmware version heartbeat period.")
	fs.DurationVar(&o.ConsoleInterval, join(prefixes, "device.console-interval"), o.ConsoleInterval, "Console polling period.")
}
