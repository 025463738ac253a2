package core

import "fmt"

// FirmwareIdentity names a firmware build.
type FirmwareIdentity struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Valid reports whether both title and version are set.
func (id FirmwareIdentity) Valid() bool {
	return id.Title != "" && id.Version != ""
}

func (id FirmwareIdentity) String() string {
	return fmt.Sprintf("%s@%s", id.Title, id.Version)
}

// Firmware update states reported to the platform as fw_state.
const (
	FirmwareStateDownloading = "DOWNLOADING"
	FirmwareStateDownloaded  = "DOWNLOADED"
	FirmwareStateVerified    = "VERIFIED"
	FirmwareStateUpdating    = "UPDATING"
	FirmwareStateUpdated     = "UPDATED"
	FirmwareStateFailed      = "FAILED"
)

// FirmwareInfo is the desired firmware as advertised by the platform.
type FirmwareInfo struct {
	FirmwareIdentity

	Size              int64  `json:"size"`
	Checksum          string `json:"checksum"`
	ChecksumAlgorithm string `json:"checksum_algorithm"`

	// URL optionally points at an object store copy of the image.
	URL string `json:"url,omitempty"`
}
