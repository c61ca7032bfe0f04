package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

func Validate(cfg *Config) error {
	var errs []error

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if err := validateURL(cfg.Server.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("server.public_url: %w", err))
	}

	for i, origin := range cfg.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] %q is not a valid URL with scheme", i, origin))
		}
	}

	// TLS validation
	switch cfg.Server.TLS.Mode {
	case "", "off":
	case "auto":
		if cfg.Server.TLS.Auto.Domain == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.domain is required when tls mode is auto"))
		}
		if cfg.Server.TLS.Auto.CacheDir == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.cache_dir is required when tls mode is auto"))
		}
	case "manual":
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.cert_file is required when tls mode is manual"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.key_file is required when tls mode is manual"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.tls.mode must be off, auto, or manual"))
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	if cfg.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative"))
	}

	// Upstream APIs
	for _, u := range []struct {
		name  string
		value string
	}{
		{"neynar.base_url", cfg.Neynar.BaseURL},
		{"catalog.base_url", cfg.Catalog.BaseURL},
		{"hub.base_url", cfg.Hub.BaseURL},
	} {
		if u.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", u.name))
			continue
		}
		if err := validateURL(u.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
		}
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"neynar.timeout", cfg.Neynar.Timeout},
		{"catalog.timeout", cfg.Catalog.Timeout},
		{"hub.timeout", cfg.Hub.Timeout},
		{"fetch.timeout", cfg.Fetch.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if cfg.Neynar.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("neynar.concurrency must be at least 1"))
	}
	if cfg.Catalog.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("catalog.cache_ttl must not be negative"))
	}

	// Fetch validation
	if cfg.Fetch.MaxBodySize < 1024 {
		errs = append(errs, fmt.Errorf("fetch.max_body_size must be at least 1KB"))
	}
	if cfg.Fetch.MaxPixels < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_pixels must be at least 1"))
	}
	if cfg.Fetch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be at least 1"))
	}

	// Storage validation (only when enabled)
	if cfg.Storage.Endpoint != "" {
		if cfg.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required when storage.endpoint is set"))
		}
		if cfg.Storage.CDNBaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.cdn_base_url is required when storage.endpoint is set"))
		} else if err := validateURL(cfg.Storage.CDNBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("storage.cdn_base_url: %w", err))
		}
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, fmt.Errorf("telemetry.endpoint is required when telemetry is enabled"))
	}

	// Rate limit validation (only when enabled)
	if cfg.RateLimit.Enabled {
		for _, ep := range []struct {
			name string
			cfg  RateLimitEndpoint
		}{
			{"rate_limit.frames", cfg.RateLimit.Frames},
			{"rate_limit.images", cfg.RateLimit.Images},
			{"rate_limit.mint", cfg.RateLimit.Mint},
		} {
			if ep.cfg.Limit < 1 {
				errs = append(errs, fmt.Errorf("%s.limit must be at least 1", ep.name))
			}
			if ep.cfg.Window < time.Second {
				errs = append(errs, fmt.Errorf("%s.window must be at least 1s", ep.name))
			}
		}
	}

	if cfg.Mint.CastText != "" && cfg.Mint.CastsToCheck < 1 {
		errs = append(errs, fmt.Errorf("mint.casts_to_check must be at least 1 when mint.cast_text is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	return nil
}
