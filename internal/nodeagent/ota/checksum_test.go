package ota

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

func TestVerify(t *testing.T) {
	data := []byte("firmware image")

	for _, alg := range []string{"SHA256", "sha384", "SHA512", "md5", "CRC32"} {
		h, err := newHasher(alg)
		require.NoError(t, err, alg)
		h.Write(data)
		sum := hex.EncodeToString(h.Sum(nil))

		h, _ = newHasher(alg)
		h.Write(data)
		assert.NoError(t, verify(h, sum), alg)

		h, _ = newHasher(alg)
		h.Write([]byte("tampered"))
		assert.ErrorIs(t, verify(h, sum), ErrChecksumMismatch, alg)
	}
}

func TestVerifyCRC32LeadingZeros(t *testing.T) {
	sum := fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte("a")))

	h, _ := newHasher("CRC32")
	h.Write([]byte("a"))
	assert.NoError(t, verify(h, "00"+sum))

	h, _ = newHasher("CRC32")
	assert.NoError(t, verify(h, ""), "empty checksum is not verified")
}

func TestValidate(t *testing.T) {
	ok := core.FirmwareInfo{
		FirmwareIdentity:  core.FirmwareIdentity{Title: "fw", Version: "2"},
		Size:              10,
		ChecksumAlgorithm: "SHA256",
	}
	assert.NoError(t, validate(ok))

	noAlg := ok
	noAlg.ChecksumAlgorithm = ""
	assert.NoError(t, validate(noAlg))

	cases := map[string]func(*core.FirmwareInfo){
		"missing version":      func(i *core.FirmwareInfo) { i.Version = "" },
		"zero size":            func(i *core.FirmwareInfo) { i.Size = 0 },
		"unknown algorithm":    func(i *core.FirmwareInfo) { i.ChecksumAlgorithm = "SHA3" },
		"checksum without alg": func(i *core.FirmwareInfo) { i.ChecksumAlgorithm = ""; i.Checksum = "00" },
	}
	for name, mutate := range cases {
		info := ok
		mutate(&info)
		assert.Error(t, validate(info), name)
	}
}

type recordingSource struct{ opened []string }

func (s *recordingSource) Open(_ context.Context, info core.FirmwareInfo) (Transfer, error) {
	s.opened = append(s.opened, info.URL)
	return nil, nil
}

func TestRouter(t *testing.T) {
	fallback, s3 := &recordingSource{}, &recordingSource{}
	r := NewRouter(fallback)
	r.Handle("s3", s3)

	ctx := context.Background()
	for _, u := range []string{"", "s3://firmware/fwA-2.0.bin", "https://example.com/fw.bin"} {
		_, err := r.Open(ctx, core.FirmwareInfo{URL: u})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"", "https://example.com/fw.bin"}, fallback.opened)
	assert.Equal(t, []string{"s3://firmware/fwA-2.0.bin"}, s3.opened)

	_, err := r.Open(ctx, core.FirmwareInfo{URL: "://bad"})
	assert.Error(t, err)
}

type chunkRecorder struct{ ids []string }

func (c *chunkRecorder) RequestFirmwareChunk(_ context.Context, id string, index, size int) ([]byte, error) {
	c.ids = append(c.ids, id)
	return make([]byte, size), nil
}

func TestChunkSourceUsesFreshRequestID(t *testing.T) {
	rec := &chunkRecorder{}
	src := NewChunkSource(rec)
	ctx := context.Background()

	a, _ := src.Open(ctx, core.FirmwareInfo{})
	b, _ := src.Open(ctx, core.FirmwareInfo{})
	_, _ = a.ReadChunk(ctx, 0, 4)
	_, _ = a.ReadChunk(ctx, 1, 4)
	_, _ = b.ReadChunk(ctx, 0, 4)

	require.Len(t, rec.ids, 3)
	assert.Equal(t, rec.ids[0], rec.ids[1])
	assert.NotEqual(t, rec.ids[0], rec.ids[2])
}
