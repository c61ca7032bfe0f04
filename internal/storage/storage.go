// Package storage publishes rendered artefacts to an S3-compatible bucket
// fronted by a CDN.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const cacheControl = "public, max-age=31536000, immutable"

var ErrDisabled = errors.New("storage is not configured")

type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	Prefix     string
	CDNBaseURL string
}

// Publisher uploads objects and returns their public CDN URL.
type Publisher struct {
	client *minio.Client
	bucket string
	prefix string
	cdn    string
}

// New returns ErrDisabled when no endpoint is configured.
func New(opts Options) (*Publisher, error) {
	if opts.Endpoint == "" {
		return nil, ErrDisabled
	}

	transport, err := minio.DefaultTransport(opts.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("building storage transport: %w", err)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: otelhttp.NewTransport(transport),
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &Publisher{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		cdn:    strings.TrimRight(opts.CDNBaseURL, "/"),
	}, nil
}

// PublishPNG stores data as {prefix}/{name}.png. An empty name gets a
// generated ULID.
func (p *Publisher) PublishPNG(ctx context.Context, name string, data []byte) (string, error) {
	return p.put(ctx, name, ".png", "image/png", data)
}

func (p *Publisher) PublishSVG(ctx context.Context, name string, data []byte) (string, error) {
	return p.put(ctx, name, ".svg", "image/svg+xml", data)
}

func (p *Publisher) PublishJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	return p.put(ctx, name, ".json", "application/json", data)
}

// Key returns the object key for name and extension.
func (p *Publisher) Key(name, ext string) string {
	return path.Join(p.prefix, name+ext)
}

func (p *Publisher) put(ctx context.Context, name, ext, contentType string, data []byte) (string, error) {
	if name == "" {
		name = ulid.Make().String()
	}
	key := p.Key(name, ext)

	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return p.cdn + "/" + key, nil
}
