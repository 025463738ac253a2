package attributes

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

// FirmwareKeys are the shared attributes that describe a firmware image.
var FirmwareKeys = []string{KeyTitle, KeyVersion, KeySize, KeyChecksum, KeyChecksumAlgorithm, KeyURL}

// Requester fetches shared attribute values.
type Requester interface {
	RequestAttributes(ctx context.Context, keys []string) ([]byte, error)
}

// Resolver looks up the size and checksum of the firmware currently assigned
// to the device.
type Resolver struct {
	platform Requester
	timeout  time.Duration
}

func NewResolver(platform Requester, timeout time.Duration) *Resolver {
	return &Resolver{platform: platform, timeout: timeout}
}

// FirmwareInfo returns the firmware attributes as the platform reports them
// now. The caller compares the identity with the one it asked for.
func (r *Resolver) FirmwareInfo(ctx context.Context, id core.FirmwareIdentity) (core.FirmwareInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := r.platform.RequestAttributes(ctx, FirmwareKeys)
	if err != nil {
		return core.FirmwareInfo{}, fmt.Errorf("request metadata of %s: %w", id.String(), err)
	}

	u, err := Decode(payload, FirmwareKeys)
	if err != nil {
		return core.FirmwareInfo{}, err
	}
	return u.Firmware, nil
}
