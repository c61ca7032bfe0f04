// Package farcaster is a read-through client for the Neynar social graph
// API. Lookups consult the cache first; remote failures are logged and
// reported as absent data rather than errors.
package farcaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meroku/framecaster/internal/cache"
)

const (
	DefaultBaseURL = "https://api.neynar.com"

	channelPageSize   = 1000
	followingPageSize = 150
	minFollowersLimit = 150
	defaultCastLimit  = 10
	randomPoolSize    = 30
	defaultTimeout    = 10 * time.Second
	defaultWorkers    = 8
	maxResponseSize   = 16 << 20
)

var (
	ErrInvalidFID     = errors.New("fid must be positive")
	ErrInvalidUser    = errors.New("user reference is empty")
	ErrInvalidChannel = errors.New("channel id is empty")

	errStatus = errors.New("unexpected status")
)

type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Concurrency int
}

// Client talks to Neynar through the shared cache.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	cache       cache.Cache
	concurrency int
	intN        func(n int) int
}

func NewClient(c cache.Cache, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return NewClientWithHTTPClient(c, hc, opts)
}

func NewClientWithHTTPClient(c cache.Cache, hc *http.Client, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultWorkers
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		http:        hc,
		cache:       c,
		concurrency: opts.Concurrency,
		intN:        rand.IntN,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", errStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func fidParam(fid int64) string {
	return strconv.FormatInt(fid, 10)
}

// walk follows cursor pagination on path until match returns true or the
// cursor runs out. Failures end the walk as "not found".
func (c *Client) walk(ctx context.Context, path string, query url.Values, match func(Profile) bool) bool {
	pages := 0
	for {
		var page usersPage
		if err := c.getJSON(ctx, path, query, &page); err != nil {
			slog.Warn("follower walk aborted", "path", path, "pages", pages, "error", err)
			return false
		}
		pages++

		for _, u := range page.users() {
			if match(u) {
				return true
			}
		}

		next := page.cursor()
		if next == "" {
			return false
		}
		query.Set("cursor", next)
	}
}
