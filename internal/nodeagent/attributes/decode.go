package attributes

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

// Shared attribute keys carrying the desired firmware.
const (
	KeyTitle             = "fw_title"
	KeyVersion           = "fw_version"
	KeySize              = "fw_size"
	KeyChecksum          = "fw_checksum"
	KeyChecksumAlgorithm = "fw_checksum_algorithm"
	KeyURL               = "fw_url"
)

// Update is a decoded attribute push.
type Update struct {
	// Firmware holds the firmware keys present in the push.
	Firmware core.FirmwareInfo

	// Other holds the remaining watched keys, undecoded.
	Other map[string]json.RawMessage
}

// HasFirmware reports whether the push names a complete firmware identity.
func (u Update) HasFirmware() bool {
	return u.Firmware.Valid()
}

// Decode parses a push or an attribute response. Responses wrap the values in
// {"shared": {...}}. Keys outside keys are dropped; an empty keys accepts all.
// A firmware key of the wrong type is a decode error.
func Decode(payload []byte, keys []string) (Update, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(payload, &values); err != nil {
		return Update{}, fmt.Errorf("decode attributes: %w", err)
	}

	if shared, ok := values["shared"]; ok {
		values = nil
		if err := json.Unmarshal(shared, &values); err != nil {
			return Update{}, fmt.Errorf("decode shared attributes: %w", err)
		}
	}

	u := Update{Other: map[string]json.RawMessage{}}
	for key, raw := range values {
		if len(keys) > 0 && !slices.Contains(keys, key) {
			continue
		}

		var err error
		switch key {
		case KeyTitle:
			err = decodeField(raw, &u.Firmware.Title)
		case KeyVersion:
			err = decodeField(raw, &u.Firmware.Version)
		case KeySize:
			err = decodeField(raw, &u.Firmware.Size)
		case KeyChecksum:
			err = decodeField(raw, &u.Firmware.Checksum)
		case KeyChecksumAlgorithm:
			err = decodeField(raw, &u.Firmware.ChecksumAlgorithm)
		case KeyURL:
			err = decodeField(raw, &u.Firmware.URL)
		default:
			u.Other[key] = raw
		}
		if err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", key, err)
		}
	}

	return u, nil
}

// decodeField rejects null so that a wrong type is never read as the zero value.
func decodeField[T any](raw json.RawMessage, dst *T) error {
	if string(raw) == "null" {
		return fmt.Errorf("unexpected null")
	}
	return json.Unmarshal(raw, dst)
}
