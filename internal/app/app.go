package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/meroku/framecaster/internal/cache"
	"github.com/meroku/framecaster/internal/catalog"
	"github.com/meroku/framecaster/internal/compose"
	"github.com/meroku/framecaster/internal/config"
	"github.com/meroku/framecaster/internal/criteria"
	"github.com/meroku/framecaster/internal/farcaster"
	"github.com/meroku/framecaster/internal/fetch"
	"github.com/meroku/framecaster/internal/handler"
	"github.com/meroku/framecaster/internal/hub"
	"github.com/meroku/framecaster/internal/linkpreview"
	"github.com/meroku/framecaster/internal/ratelimit"
	"github.com/meroku/framecaster/internal/server"
	"github.com/meroku/framecaster/internal/storage"
)

const pingTimeout = 3 * time.Second

type App struct {
	Config      *config.Config
	Server      *server.Server
	Handler     *handler.Handler
	Cache       cache.Cache
	Graph       *farcaster.Client
	RateLimiter *ratelimit.Limiter
}

func New(cfg *config.Config) (*App, error) {
	// Initialize cache
	c := NewCache(cfg.Redis)

	// Initialize upstream clients
	fetchOpts := fetch.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxBodySize:  cfg.Fetch.MaxBodySize,
		MaxPixels:    cfg.Fetch.MaxPixels,
		Concurrency:  cfg.Fetch.Concurrency,
		AllowPrivate: cfg.Fetch.AllowPrivate,
	}
	fetcher := fetch.NewFetcher(c, fetchOpts)
	previews := linkpreview.NewFetcher(c, fetch.NewClient(fetchOpts))
	graph := NewGraph(c, cfg.Neynar)
	catalogClient := catalog.NewClient(c, catalog.Options{
		BaseURL:     cfg.Catalog.BaseURL,
		APIKey:      cfg.Catalog.APIKey,
		StoreKey:    cfg.Catalog.StoreKey,
		ExplorerURL: cfg.Catalog.ExplorerURL,
		Timeout:     cfg.Catalog.Timeout,
		CacheTTL:    cfg.Catalog.CacheTTL,
	})
	hubClient := hub.NewClient(cfg.Hub.BaseURL, cfg.Hub.Timeout)

	// Initialize compositor; the template must load
	compositor, err := compose.New(fetcher, compose.Options{
		BackgroundPath: cfg.Compose.BackgroundPath,
		FontPath:       cfg.Compose.FontPath,
	})
	if err != nil {
		closeCache(c)
		return nil, fmt.Errorf("loading compositor: %w", err)
	}

	// Initialize publisher (nil if storage is not configured)
	publisher, err := storage.New(storage.Options{
		Endpoint:   cfg.Storage.Endpoint,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Bucket:     cfg.Storage.Bucket,
		Region:     cfg.Storage.Region,
		UseSSL:     cfg.Storage.UseSSL,
		Prefix:     cfg.Storage.Prefix,
		CDNBaseURL: cfg.Storage.CDNBaseURL,
	})
	switch {
	case errors.Is(err, storage.ErrDisabled):
		publisher = nil
		slog.Info("storage not configured, publishing disabled")
	case err != nil:
		closeCache(c)
		return nil, err
	}

	h := handler.New(handler.Dependencies{
		Catalog:      catalogClient,
		Graph:        graph,
		Evaluator:    criteria.NewEvaluator(graph),
		Compositor:   compositor,
		Hub:          hubClient,
		Publisher:    publisher,
		Previews:     previews,
		Mint:         MintCriterion(cfg.Mint),
		PublicURL:    cfg.Server.PublicURL,
		DappStoreURL: cfg.Catalog.DappStoreURL,
	})

	// Build rate limiter (nil if disabled)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(Rules(cfg.RateLimit))
	}

	router := server.NewRouter(h, limiter, cfg.Server.AllowedOrigins)

	// Build TLS options
	tlsOpts := server.TLSOptions{
		Mode:     cfg.Server.TLS.Mode,
		CertFile: cfg.Server.TLS.CertFile,
		KeyFile:  cfg.Server.TLS.KeyFile,
		Domain:   cfg.Server.TLS.Auto.Domain,
		Email:    cfg.Server.TLS.Auto.Email,
		CacheDir: cfg.Server.TLS.Auto.CacheDir,
	}
	if tlsOpts.Mode == "auto" {
		if err := os.MkdirAll(tlsOpts.CacheDir, 0700); err != nil {
			closeCache(c)
			return nil, fmt.Errorf("creating TLS cache directory: %w", err)
		}
	}

	// Create server
	srv := server.New(cfg.Server.Host, cfg.Server.Port, router, tlsOpts)

	return &App{
		Config:      cfg,
		Server:      srv,
		Handler:     h,
		Cache:       c,
		Graph:       graph,
		RateLimiter: limiter,
	}, nil
}

// NewCache returns a Redis cache when an address is configured and the
// in-memory cache otherwise. An unreachable Redis is logged, not fatal:
// lookups degrade to misses until it comes back.
func NewCache(cfg config.RedisConfig) cache.Cache {
	if cfg.Addr == "" {
		slog.Info("redis not configured, using in-memory cache")
		return cache.NewMemory()
	}
	r := cache.NewRedis(cache.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, cache lookups will miss", "addr", cfg.Addr, "error", err)
	}
	return r
}

func NewGraph(c cache.Cache, cfg config.NeynarConfig) *farcaster.Client {
	return farcaster.NewClient(c, farcaster.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Timeout:     cfg.Timeout,
		Concurrency: cfg.Concurrency,
	})
}

// MintCriterion converts the configured mint conditions.
func MintCriterion(cfg config.MintConfig) criteria.Criterion {
	c := criteria.Criterion{
		FollowChannel: cfg.FollowChannel,
		CastText:      cfg.CastText,
		CastsToCheck:  cfg.CastsToCheck,
	}
	if cfg.FollowUser != "" {
		ref := farcaster.ParseUserRef(cfg.FollowUser)
		c.FollowUser = &ref
	}
	return c
}

// Rules maps the configured budgets onto route prefixes. Index and health
// checks are not limited.
func Rules(cfg config.RateLimitConfig) []ratelimit.Rule {
	return []ratelimit.Rule{
		{Method: http.MethodPost, Prefix: "/mint", Limit: cfg.Mint.Limit, Window: cfg.Mint.Window},
		{Method: http.MethodGet, Prefix: "/frame/image/", Limit: cfg.Images.Limit, Window: cfg.Images.Window},
		{Method: http.MethodGet, Prefix: "/card.svg", Limit: cfg.Images.Limit, Window: cfg.Images.Window},
		{Method: http.MethodPost, Prefix: "/", Limit: cfg.Frames.Limit, Window: cfg.Frames.Window},
		{Method: http.MethodGet, Prefix: "/redirect/", Limit: cfg.Frames.Limit, Window: cfg.Frames.Window},
	}
}

func closeCache(c cache.Cache) {
	if closer, ok := c.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
}

func (a *App) Start(ctx context.Context) error {
	// Start rate limiter cleanup
	if a.RateLimiter != nil {
		go runEvery(ctx, 10*time.Minute, a.RateLimiter.Cleanup)
	}

	// Start expired cache entry cleanup
	if mem, ok := a.Cache.(*cache.Memory); ok {
		go runEvery(ctx, time.Minute, mem.Cleanup)
	}

	slog.Info("starting framecaster",
		"addr", a.Server.Addr(),
		"public_url", a.Config.Server.PublicURL,
		"tls", a.Server.TLSMode(),
		"redis", a.Config.Redis.Addr != "",
		"storage", a.Config.Storage.Endpoint != "",
		"rate_limit", a.RateLimiter != nil,
	)

	return a.Server.Start()
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Shutdown stops the server, waits for background warm-ups and closes the
// cache.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.Handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("background tasks still running at shutdown")
	}

	closeCache(a.Cache)
	return err
}
