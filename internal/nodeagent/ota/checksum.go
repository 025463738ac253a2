package ota

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"strings"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

var (
	// ErrChecksumMismatch is returned when a downloaded image does not match fw_checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrUnsupportedAlgorithm is returned for an unknown fw_checksum_algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")
)

// defaultAlgorithm digests images that come without a checksum.
const defaultAlgorithm = "SHA256"

var hashers = map[string]func() hash.Hash{
	"SHA256": sha256.New,
	"SHA384": sha512.New384,
	"SHA512": sha512.New,
	"MD5":    md5.New,
	"CRC32":  func() hash.Hash { return crc32.NewIEEE() },
}

func newHasher(algorithm string) (hash.Hash, error) {
	h, ok := hashers[strings.ToUpper(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return h(), nil
}

// verify compares the hex digest of h with the expected checksum. An empty
// checksum is not verified.
func verify(h hash.Hash, checksum string) error {
	if checksum == "" {
		return nil
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(strings.TrimLeft(got, "0"), strings.TrimLeft(checksum, "0")) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, checksum)
	}
	return nil
}

// validate rejects firmware info that cannot be transferred.
func validate(info core.FirmwareInfo) error {
	if !info.Valid() {
		return errors.New("firmware title and version are required")
	}
	if info.Size <= 0 {
		return fmt.Errorf("invalid firmware size %d", info.Size)
	}
	if info.ChecksumAlgorithm == "" {
		if info.Checksum != "" {
			return fmt.Errorf("%w: checksum without algorithm", ErrUnsupportedAlgorithm)
		}
		return nil
	}
	if _, err := newHasher(info.ChecksumAlgorithm); err != nil {
		return err
	}
	return nil
}
