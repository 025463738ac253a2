package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items related to the local health and metrics server.
type HttpOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address. An empty address disables the server.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds reads, writes and graceful shutdown.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network: "tcp",
		Addr:    "127.0.0.1:9102",
		Timeout: 10 * time.Second,
	}
}

// Enabled reports whether the server should be started.
func (o *HttpOptions) Enabled() bool {
	return o != nil && o.Addr != ""
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the HTTP server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, join(prefixes, "http.network"), o.Network, "Specify the network for the HTTP server.")
	fs.StringVar(&o.Addr, join(prefixes, "http.addr"), o.Addr, "Bind address of the health and metrics server. Empty disables it.")
	fs.DurationVar(&o.Timeout, join(prefixes, "http.timeout"), o.Timeout, "Timeout for server connections and shutdown.")
}
