package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/nodeagent/pkg/options"
)

type minioProvider struct {
	client *minio.Client
}

// NewMinIOProvider creates an S3 provider backed by minio-go.
func NewMinIOProvider(opts *options.S3Options) (Provider, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioProvider{client: client}, nil
}

func (p *minioProvider) Size(ctx context.Context, bucket, key string) (int64, error) {
	info, err := p.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return info.Size, nil
}

func (p *minioProvider) ReadRange(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, err
	}

	obj, err := p.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s at %d: %w", bucket, key, offset, err)
	}
	return data, nil
}
