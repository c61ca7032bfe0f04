// Package fetch downloads remote images for compositing, caching the
// normalised PNG bytes so repeated renders do not hit the origin.
package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/sync/errgroup"

	"github.com/meroku/framecaster/internal/cache"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxBodySize = 8 << 20 // 8 MB
	defaultMaxPixels   = 4096 * 4096
	defaultConcurrency = 8
	maxRedirects       = 3
	userAgentValue     = "Framecaster/1.0"
)

var (
	ErrStatus        = errors.New("unexpected status")
	ErrTooLarge      = errors.New("image exceeds size limit")
	ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")
	ErrUnsupported   = errors.New("unsupported image format")
)

// Options tunes the fetcher. Zero values fall back to the defaults above.
type Options struct {
	Timeout      time.Duration
	MaxBodySize  int64
	MaxPixels    int64
	Concurrency  int
	AllowPrivate bool
}

// Fetcher fetches remote images through the cache.
type Fetcher struct {
	cache       cache.Cache
	client      *http.Client
	maxBodySize int64
	maxPixels   int64
	concurrency int
}

// NewFetcher creates a Fetcher with an SSRF-safe HTTP client unless
// opts.AllowPrivate is set.
func NewFetcher(c cache.Cache, opts Options) *Fetcher {
	return NewFetcherWithClient(c, NewClient(opts), opts)
}

// NewClient returns the instrumented HTTP client the fetcher uses: bounded
// redirects, and private addresses refused unless opts.AllowPrivate is set.
func NewClient(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	transport := &http.Transport{
		DialContext:         newDialer(opts.Timeout, opts.AllowPrivate).DialContext,
		TLSHandshakeTimeout: opts.Timeout,
		MaxIdleConnsPerHost: 4,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// NewFetcherWithClient creates a Fetcher with a custom HTTP client.
func NewFetcherWithClient(c cache.Cache, client *http.Client, opts Options) *Fetcher {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Fetcher{
		cache:       c,
		client:      client,
		maxBodySize: opts.MaxBodySize,
		maxPixels:   opts.MaxPixels,
		concurrency: opts.Concurrency,
	}
}

// FetchOne returns the decoded image at url. A cached copy is used when
// present; otherwise the image is downloaded, checked against the pixel
// limit before decoding, normalised to PNG and cached for 20 minutes. Cache write failures never fail the fetch.
func (f *Fetcher) FetchOne(ctx context.Context, url string) (image.Image, error) {
	key := cache.ExternalImage(url)

	if encoded, ok := f.cache.Get(ctx, key); ok {
		img, err := decodeCached(encoded)
		if err == nil {
			return img, nil
		}
		slog.Warn("discarding corrupt cached image", "url", url, "error", err)
	}

	data, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > f.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	if format != "png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("converting %s to png: %w", format, err)
		}
		data = buf.Bytes()
	}

	f.cache.Set(ctx, key, base64.StdEncoding.EncodeToString(data), cache.ExternalImageTTL)
	return img, nil
}

// FetchMany fetches urls concurrently. The result has the same length and
// order as urls; an entry is nil when its URL is empty or could not be
// fetched. One failure never affects the others.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string) []image.Image {
	out := make([]image.Image, len(urls))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, url := range urls {
		if url == "" {
			continue
		}
		g.Go(func() error {
			img, err := f.FetchOne(ctx, url)
			if err != nil {
				slog.Warn("image fetch failed", "url", url, "error", err)
				return nil
			}
			out[i] = img
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBodySize {
		return nil, ErrTooLarge
	}
	return data, nil
}

func decodeCached(encoded string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}
