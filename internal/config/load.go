package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "FRAMECASTER_"

func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	defaults := Defaults()
	if err := k.Load(defaultsProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. Load from config file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	} else {
		for _, path := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("loading config file: %w", err)
				}
				break
			}
		}
	}

	// 3. Load from environment variables (FRAMECASTER_ prefix)
	known := envKeys(k.Keys())
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return envToKey(known, s)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// 4. Load from CLI flags
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// 6. Validate
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envKeys maps the underscore form of every known key to its dotted path, so
// FRAMECASTER_NEYNAR_API_KEY resolves to neynar.api_key rather than
// neynar.api.key.
func envKeys(keys []string) map[string]string {
	m := make(map[string]string, len(keys))
	for _, key := range keys {
		m[strings.ReplaceAll(key, ".", "_")] = key
	}
	return m
}

func envToKey(known map[string]string, s string) string {
	name := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key, ok := known[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "_", ".")
}

type defaultsProviderStruct struct {
	defaults *Config
}

func defaultsProvider(defaults *Config) *defaultsProviderStruct {
	return &defaultsProviderStruct{defaults: defaults}
}

func (d *defaultsProviderStruct) ReadBytes() ([]byte, error) {
	return nil, nil
}

func endpointMap(ep RateLimitEndpoint) map[string]interface{} {
	return map[string]interface{}{
		"limit":  ep.Limit,
		"window": ep.Window.String(),
	}
}

func (d *defaultsProviderStruct) Read() (map[string]interface{}, error) {
	c := d.defaults
	return map[string]interface{}{
		"server": map[string]interface{}{
			"host":            c.Server.Host,
			"port":            c.Server.Port,
			"public_url":      c.Server.PublicURL,
			"allowed_origins": c.Server.AllowedOrigins,
			"tls": map[string]interface{}{
				"mode":      c.Server.TLS.Mode,
				"cert_file": c.Server.TLS.CertFile,
				"key_file":  c.Server.TLS.KeyFile,
				"auto": map[string]interface{}{
					"domain":    c.Server.TLS.Auto.Domain,
					"email":     c.Server.TLS.Auto.Email,
					"cache_dir": c.Server.TLS.Auto.CacheDir,
				},
			},
		},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"redis": map[string]interface{}{
			"addr":     c.Redis.Addr,
			"username": c.Redis.Username,
			"password": c.Redis.Password,
			"db":       c.Redis.DB,
		},
		"neynar": map[string]interface{}{
			"base_url":    c.Neynar.BaseURL,
			"api_key":     c.Neynar.APIKey,
			"timeout":     c.Neynar.Timeout.String(),
			"concurrency": c.Neynar.Concurrency,
		},
		"catalog": map[string]interface{}{
			"base_url":      c.Catalog.BaseURL,
			"api_key":       c.Catalog.APIKey,
			"store_key":     c.Catalog.StoreKey,
			"explorer_url":  c.Catalog.ExplorerURL,
			"dappstore_url": c.Catalog.DappStoreURL,
			"timeout":       c.Catalog.Timeout.String(),
			"cache_ttl":     c.Catalog.CacheTTL.String(),
		},
		"hub": map[string]interface{}{
			"base_url": c.Hub.BaseURL,
			"timeout":  c.Hub.Timeout.String(),
		},
		"fetch": map[string]interface{}{
			"timeout":       c.Fetch.Timeout.String(),
			"max_body_size": c.Fetch.MaxBodySize,
			"max_pixels":    c.Fetch.MaxPixels,
			"concurrency":   c.Fetch.Concurrency,
			"allow_private": c.Fetch.AllowPrivate,
		},
		"compose": map[string]interface{}{
			"background_path": c.Compose.BackgroundPath,
			"font_path":       c.Compose.FontPath,
		},
		"storage": map[string]interface{}{
			"endpoint":     c.Storage.Endpoint,
			"access_key":   c.Storage.AccessKey,
			"secret_key":   c.Storage.SecretKey,
			"bucket":       c.Storage.Bucket,
			"region":       c.Storage.Region,
			"use_ssl":      c.Storage.UseSSL,
			"prefix":       c.Storage.Prefix,
			"cdn_base_url": c.Storage.CDNBaseURL,
		},
		"telemetry": map[string]interface{}{
			"enabled":      c.Telemetry.Enabled,
			"endpoint":     c.Telemetry.Endpoint,
			"insecure":     c.Telemetry.Insecure,
			"service_name": c.Telemetry.ServiceName,
		},
		"rate_limit": map[string]interface{}{
			"enabled": c.RateLimit.Enabled,
			"frames":  endpointMap(c.RateLimit.Frames),
			"images":  endpointMap(c.RateLimit.Images),
			"mint":    endpointMap(c.RateLimit.Mint),
		},
		"mint": map[string]interface{}{
			"follow_channel": c.Mint.FollowChannel,
			"follow_user":    c.Mint.FollowUser,
			"cast_text":      c.Mint.CastText,
			"casts_to_check": c.Mint.CastsToCheck,
		},
	}, nil
}

func SetupFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("framecaster", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("server.host", "", "Server host")
	flags.Int("server.port", 0, "Server port")
	flags.String("server.public_url", "", "Public URL used in frame post targets")
	flags.StringSlice("server.allowed_origins", nil, "Allowed CORS origins")
	flags.String("server.tls.mode", "", "TLS mode: off, auto, or manual")
	flags.String("server.tls.cert_file", "", "TLS certificate file (manual mode)")
	flags.String("server.tls.key_file", "", "TLS key file (manual mode)")
	flags.String("server.tls.auto.domain", "", "Domain for automatic TLS (auto mode)")
	flags.String("server.tls.auto.email", "", "Contact email for Let's Encrypt (auto mode)")
	flags.String("server.tls.auto.cache_dir", "", "Certificate cache directory (auto mode)")
	flags.String("log.level", "", "Log level: debug, info, warn, error")
	flags.String("log.format", "", "Log format: text or json")
	flags.String("redis.addr", "", "Redis address (empty uses the in-memory cache)")
	flags.String("neynar.api_key", "", "Neynar API key")
	flags.String("catalog.api_key", "", "Meroku API key")
	flags.String("hub.base_url", "", "Farcaster hub HTTP API base URL")
	flags.String("storage.endpoint", "", "S3-compatible endpoint for published images")
	flags.Bool("telemetry.enabled", false, "Export traces, metrics and logs over OTLP")
	flags.String("mint.follow_channel", "", "Channel the minter must follow")
	flags.String("mint.follow_user", "", "User (fid or username) the minter must follow")
	flags.String("mint.cast_text", "", "Text that must appear in one of the minter's recent casts")
	return flags
}
