// Package catalog reads the Meroku app store and submits ratings.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meroku/framecaster/internal/cache"
)

const (
	DefaultBaseURL     = "https://api.meroku.store"
	DefaultStoreKey    = "farcaster"
	DefaultExplorerURL = "https://explorer.meroku.org"

	defaultTimeout = 10 * time.Second
	maxBodySize    = 8 << 20
)

var (
	ErrAppNotFound = errors.New("app not found")
	ErrRating      = errors.New("rating rejected")
)

// App is a catalog entry.
type App struct {
	DappID      string `json:"dappId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AppURL      string `json:"appUrl,omitempty"`
	Images      Images `json:"images"`
}

type Images struct {
	Logo              string   `json:"logo"`
	Screenshots       []string `json:"screenshots,omitempty"`
	MobileScreenshots []string `json:"mobileScreenshots,omitempty"`
}

// Screenshot returns the first desktop screenshot, falling back to mobile.
func (i Images) Screenshot() string {
	if len(i.Screenshots) > 0 {
		return i.Screenshots[0]
	}
	if len(i.MobileScreenshots) > 0 {
		return i.MobileScreenshots[0]
	}
	return ""
}

// Rating is a star rating left through a frame.
type Rating struct {
	DappID  string `json:"dappId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
	UserID  string `json:"userId"`
}

// UserID is the catalog's identifier for a Farcaster account.
func UserID(fid int64) string {
	return fmt.Sprintf("fc_user:%d", fid)
}

type Options struct {
	BaseURL     string
	APIKey      string
	StoreKey    string
	ExplorerURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

type Client struct {
	baseURL     string
	apiKey      string
	storeKey    string
	explorerURL string
	cacheTTL    time.Duration
	http        *http.Client
	cache       cache.Cache
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
	if opts.StoreKey == "" {
		opts.StoreKey = DefaultStoreKey
	}
	if opts.ExplorerURL == "" {
		opts.ExplorerURL = DefaultExplorerURL
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		storeKey:    opts.StoreKey,
		explorerURL: strings.TrimRight(opts.ExplorerURL, "/"),
		cacheTTL:    opts.CacheTTL,
		http:        hc,
		cache:       c,
	}
}

// Apps lists the store's apps. Upstream failures yield an empty list.
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	if c.cacheTTL > 0 {
		if apps, ok := cache.GetJSON[[]App](ctx, c.cache, cache.CatalogAppsKey); ok {
			return *apps, nil
		}
	}

	apps, err := c.fetchApps(ctx)
	if err != nil {
		slog.Warn("catalog search failed", "error", err)
		return []App{}, nil
	}

	if c.cacheTTL > 0 && len(apps) > 0 {
		cache.SetJSON(ctx, c.cache, cache.CatalogAppsKey, apps, c.cacheTTL)
	}
	return apps, nil
}

func (c *Client) fetchApps(ctx context.Context) ([]App, error) {
	u := c.baseURL + "/api/v1/dapp/search?" + url.Values{"storeKey": {c.storeKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	var body struct {
		Data []App `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if body.Data == nil {
		body.Data = []App{}
	}
	return body.Data, nil
}

// App returns the app with the given id.
func (c *Client) App(ctx context.Context, id string) (*App, error) {
	apps, err := c.Apps(ctx)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].DappID == id {
			return &apps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAppNotFound, id)
}

// Rate submits a rating.
func (c *Client) Rate(ctx context.Context, r Rating) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/dapp/rate", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submitting rating: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrRating, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// ViewURL is the tracked link that opens an app for a Farcaster user.
func (c *Client) ViewURL(appID string, fid int64) string {
	return fmt.Sprintf("%s/api/v1/o/view/%s?%s", c.baseURL, url.PathEscape(appID), url.Values{"userId": {UserID(fid)}}.Encode())
}

// ExplorerURL is the public explorer page for an app.
func (c *Client) ExplorerURL(appID string) string {
	return c.explorerURL + "/dapp?" + url.Values{"id": {appID}}.Encode()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
}
