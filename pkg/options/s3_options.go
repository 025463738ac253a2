package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the optional object-store firmware source. Firmware whose
// fw_url uses the s3:// scheme is fetched from here instead of over MQTT.
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`

	// InsecureSkipVerify accepts self-signed certificates on the endpoint.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		UseSSL:     true,
		BucketName: "firmware",
		Region:     "us-east-1",
	}
}

// Enabled reports whether an endpoint is configured.
func (o *S3Options) Enabled() bool {
	return o != nil && o.Endpoint != ""
}

func (o *S3Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errors := []error{}

	if o.AccessKeyID == "" || o.SecretAccessKey == "" {
		errors = append(errors, fmt.Errorf("--s3.access-key-id and --s3.secret-access-key are required with --s3.endpoint"))
	}
	if o.BucketName == "" {
		errors = append(errors, fmt.Errorf("--s3.bucket-name is required with --s3.endpoint"))
	}

	return errors
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, join(prefixes, "s3.endpoint"), o.Endpoint, "S3 endpoint serving firmware images (e.g. minio.local:9000). Empty disables it.")
	fs.StringVar(&o.AccessKeyID, join(prefixes, "s3.access-key-id"), o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, join(prefixes, "s3.secret-access-key"), o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, join(prefixes, "s3.use-ssl"), o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, join(prefixes, "s3.bucket-name"), o.BucketName, "Default bucket for firmware URLs without a bucket")
	fs.StringVar(&o.Region, join(prefixes, "s3.region"), o.Region, "S3 region")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "s3.insecure-skip-verify"), o.InsecureSkipVerify, "Skip TLS verification of the S3 endpoint")
}
