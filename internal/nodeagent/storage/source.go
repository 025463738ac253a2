package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/nodeagent/ota"
)

// Scheme is the fw_url scheme served by Source.
const Scheme = "s3"

// Source serves firmware images stored as s3://bucket/key objects.
type Source struct {
	provider      Provider
	defaultBucket string
}

var _ ota.Source = (*Source)(nil)

func NewSource(provider Provider, defaultBucket string) *Source {
	return &Source{provider: provider, defaultBucket: defaultBucket}
}

func (s *Source) Open(ctx context.Context, info core.FirmwareInfo) (ota.Transfer, error) {
	bucket, key, err := ParseURL(info.URL, s.defaultBucket)
	if err != nil {
		return nil, err
	}

	size, err := s.provider.Size(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if size != info.Size {
		return nil, fmt.Errorf("object %s/%s is %d bytes, firmware size is %d", bucket, key, size, info.Size)
	}

	return &objectTransfer{provider: s.provider, bucket: bucket, key: key, size: size}, nil
}

// ParseURL splits s3://bucket/key. A URL of the form s3:///key uses defaultBucket.
func ParseURL(raw, defaultBucket string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse firmware url: %w", err)
	}
	if u.Scheme != Scheme {
		return "", "", fmt.Errorf("unsupported firmware url scheme %q", u.Scheme)
	}

	bucket = u.Host
	if bucket == "" {
		bucket = defaultBucket
	}
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("firmware url %q needs a bucket and a key", raw)
	}
	return bucket, key, nil
}

type objectTransfer struct {
	provider    Provider
	bucket, key string
	size        int64
}

func (t *objectTransfer) ReadChunk(ctx context.Context, index, size int) ([]byte, error) {
	offset := int64(index) * int64(size)
	if offset >= t.size {
		return nil, fmt.Errorf("packet %d is past the end of %s/%s", index, t.bucket, t.key)
	}
	length := min(int64(size), t.size-offset)
	return t.provider.ReadRange(ctx, t.bucket, t.key, offset, length)
}

func (t *objectTransfer) Close() error { return nil }
