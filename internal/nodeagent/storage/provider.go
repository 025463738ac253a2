package storage

import (
	"context"
)

// Provider reads firmware objects from an object store.
type Provider interface {
	// Size returns the object size in bytes.
	Size(ctx context.Context, bucket, key string) (int64, error)

	// ReadRange returns length bytes of the object starting at offset.
	ReadRange(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error)
}
