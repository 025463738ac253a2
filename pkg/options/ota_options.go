package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OTAOptions)(nil)

// OTAOptions tunes the firmware transfer.
type OTAOptions struct {
	// PacketSize is the number of bytes requested per chunk.
	PacketSize int `json:"packet-size" mapstructure:"packet-size"`

	// RetryBudget is the number of packet failures tolerated per update attempt.
	RetryBudget int `json:"retry-budget" mapstructure:"retry-budget"`

	// RequestTimeout bounds attribute and chunk round-trips.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`

	// AttributeKeys are the shared attributes the device subscribes to.
	AttributeKeys []string `json:"attribute-keys" mapstructure:"attribute-keys"`
}

func NewOTAOptions() *OTAOptions {
	return &OTAOptions{
		PacketSize:     8192,
		RetryBudget:    12,
		RequestTimeout: 5 * time.Second,
		AttributeKeys: []string{
			"fw_title", "fw_version", "fw_size",
			"fw_checksum", "fw_checksum_algorithm", "fw_url",
		},
	}
}

func (o *OTAOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.PacketSize <= 0 {
		errors = append(errors, fmt.Errorf("--ota.packet-size must be positive"))
	}
	if o.RetryBudget <= 0 {
		errors = append(errors, fmt.Errorf("--ota.retry-budget must be positive"))
	}
	if o.RequestTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--ota.request-timeout must be positive"))
	}

	return errors
}

func (o *OTAOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.PacketSize, join(prefixes, "ota.packet-size"), o.PacketSize, "Firmware chunk size in bytes.")
	fs.IntVar(&o.RetryBudget, join(prefixes, "ota.retry-budget"), o.RetryBudget, "Packet failures tolerated per update attempt.")
	fs.DurationVar(&o.RequestTimeout, join(prefixes, "ota.request-timeout"), o.RequestTimeout, "Timeout of attribute and chunk requests.")
	fs.StringSliceVar(&o.AttributeKeys, join(prefixes, "ota.attribute-keys"), o.AttributeKeys, "Shared attribute keys to watch.")
}
