package ota

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

// Source opens a firmware transfer.
type Source interface {
	Open(ctx context.Context, info core.FirmwareInfo) (Transfer, error)
}

// Transfer reads an image in fixed-size packets. Packet index covers bytes
// [index*size, index*size+size).
type Transfer interface {
	ReadChunk(ctx context.Context, index, size int) ([]byte, error)
	Close() error
}

// ChunkRequester fetches one packet over the platform session.
type ChunkRequester interface {
	RequestFirmwareChunk(ctx context.Context, requestID string, index, size int) ([]byte, error)
}

// ChunkSource downloads images with the platform's chunk request protocol.
type ChunkSource struct {
	platform ChunkRequester
	seq      atomic.Uint64
}

func NewChunkSource(platform ChunkRequester) *ChunkSource {
	return &ChunkSource{platform: platform}
}

func (s *ChunkSource) Open(_ context.Context, _ core.FirmwareInfo) (Transfer, error) {
	return &chunkTransfer{
		platform:  s.platform,
		requestID: strconv.FormatUint(s.seq.Add(1), 10),
	}, nil
}

type chunkTransfer struct {
	platform  ChunkRequester
	requestID string
}

func (t *chunkTransfer) ReadChunk(ctx context.Context, index, size int) ([]byte, error) {
	return t.platform.RequestFirmwareChunk(ctx, t.requestID, index, size)
}

func (t *chunkTransfer) Close() error { return nil }

// Router picks a source by the scheme of fw_url. Images without a URL, or
// with an unregistered scheme, use the fallback.
type Router struct {
	fallback Source
	schemes  map[string]Source
}

func NewRouter(fallback Source) *Router {
	return &Router{fallback: fallback, schemes: map[string]Source{}}
}

// Handle registers src for URLs with the given scheme.
func (r *Router) Handle(scheme string, src Source) {
	r.schemes[scheme] = src
}

func (r *Router) Open(ctx context.Context, info core.FirmwareInfo) (Transfer, error) {
	if info.URL == "" {
		return r.fallback.Open(ctx, info)
	}

	u, err := url.Parse(info.URL)
	if err != nil {
		return nil, fmt.Errorf("parse firmware url: %w", err)
	}
	if src, ok := r.schemes[u.Scheme]; ok {
		return src.Open(ctx, info)
	}
	return r.fallback.Open(ctx, info)
}
