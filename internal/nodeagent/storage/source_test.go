package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

type memProvider struct {
	objects map[string][]byte
}

func (p *memProvider) Size(_ context.Context, bucket, key string) (int64, error) {
	obj, ok := p.objects[bucket+"/"+key]
	if !ok {
		return 0, errors.New("no such key")
	}
	return int64(len(obj)), nil
}

func (p *memProvider) ReadRange(_ context.Context, bucket, key string, offset, length int64) ([]byte, error) {
	obj := p.objects[bucket+"/"+key]
	return obj[offset : offset+length], nil
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://firmware/fwA/2.0.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "firmware", bucket)
	assert.Equal(t, "fwA/2.0.bin", key)

	bucket, key, err = ParseURL("s3:///fwA-2.0.bin", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", bucket)
	assert.Equal(t, "fwA-2.0.bin", key)

	for _, bad := range []string{"https://firmware/fw.bin", "s3://firmware", "s3:///fw.bin", "%zz"} {
		_, _, err := ParseURL(bad, "")
		assert.Error(t, err, bad)
	}
}

func TestSourceReadsRanges(t *testing.T) {
	image := []byte("0123456789")
	src := NewSource(&memProvider{objects: map[string][]byte{"fw/a.bin": image}}, "")
	ctx := context.Background()

	tr, err := src.Open(ctx, core.FirmwareInfo{URL: "s3://fw/a.bin", Size: 10})
	require.NoError(t, err)
	defer tr.Close()

	var got []byte
	for i := 0; i < 3; i++ {
		chunk, err := tr.ReadChunk(ctx, i, 4)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, image, got)

	_, err = tr.ReadChunk(ctx, 3, 4)
	assert.Error(t, err)
}

func TestSourceRejectsSizeMismatch(t *testing.T) {
	src := NewSource(&memProvider{objects: map[string][]byte{"fw/a.bin": []byte("abc")}}, "")

	_, err := src.Open(context.Background(), core.FirmwareInfo{URL: "s3://fw/a.bin", Size: 10})
	assert.Error(t, err)

	_, err = src.Open(context.Background(), core.FirmwareInfo{URL: "s3://fw/missing.bin", Size: 3})
	assert.Error(t, err)
}
