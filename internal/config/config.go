package config

import "time"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Redis     RedisConfig     `koanf:"redis"`
	Neynar    NeynarConfig    `koanf:"neynar"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Hub       HubConfig       `koanf:"hub"`
	Fetch     FetchConfig     `koanf:"fetch"`
	Compose   ComposeConfig   `koanf:"compose"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Mint      MintConfig      `koanf:"mint"`
}

type ServerConfig struct {
	Host           string    `koanf:"host"`
	Port           int       `koanf:"port"`
	PublicURL      string    `koanf:"public_url"`
	AllowedOrigins []string  `koanf:"allowed_origins"`
	TLS            TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	Mode     string        `koanf:"mode"` // off, auto, manual
	CertFile string        `koanf:"cert_file"`
	KeyFile  string        `koanf:"key_file"`
	Auto     AutoTLSConfig `koanf:"auto"`
}

type AutoTLSConfig struct {
	Domain   string `koanf:"domain"`
	Email    string `koanf:"email"`
	CacheDir string `koanf:"cache_dir"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// RedisConfig selects the cache backend. An empty Addr uses the in-process
// memory cache.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type NeynarConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Timeout     time.Duration `koanf:"timeout"`
	Concurrency int           `koanf:"concurrency"`
}

type CatalogConfig struct {
	BaseURL      string        `koanf:"base_url"`
	APIKey       string        `koanf:"api_key"`
	StoreKey     string        `koanf:"store_key"`
	ExplorerURL  string        `koanf:"explorer_url"`
	DappStoreURL string        `koanf:"dappstore_url"`
	Timeout      time.Duration `koanf:"timeout"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

type HubConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type FetchConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	MaxBodySize  int64         `koanf:"max_body_size"`
	MaxPixels    int64         `koanf:"max_pixels"` // width*height accepted before decoding
	Concurrency  int           `koanf:"concurrency"`
	AllowPrivate bool          `koanf:"allow_private"`
}

// ComposeConfig points at optional template and font overrides. Empty paths
// use the embedded defaults.
type ComposeConfig struct {
	BackgroundPath string `koanf:"background_path"`
	FontPath       string `koanf:"font_path"`
}

// StorageConfig configures the S3-compatible bucket used for published
// images. Publishing is disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint   string `koanf:"endpoint"`
	AccessKey  string `koanf:"access_key"`
	SecretKey  string `koanf:"secret_key"`
	Bucket     string `koanf:"bucket"`
	Region     string `koanf:"region"`
	UseSSL     bool   `koanf:"use_ssl"`
	Prefix     string `koanf:"prefix"`
	CDNBaseURL string `koanf:"cdn_base_url"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
}

type RateLimitConfig struct {
	Enabled bool              `koanf:"enabled"`
	Frames  RateLimitEndpoint `koanf:"frames"`
	Images  RateLimitEndpoint `koanf:"images"`
	Mint    RateLimitEndpoint `koanf:"mint"`
}

// RateLimitEndpoint allows Limit requests per Window with bursts up to Limit.
type RateLimitEndpoint struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// MintConfig is the eligibility criterion checked by the mint frame. Empty
// fields are not checked.
type MintConfig struct {
	FollowChannel string `koanf:"follow_channel"`
	FollowUser    string `koanf:"follow_user"`
	CastText      string `koanf:"cast_text"`
	CastsToCheck  int    `koanf:"casts_to_check"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			PublicURL: "http://localhost:8080",
			TLS: TLSConfig{
				Mode: "off",
				Auto: AutoTLSConfig{
					CacheDir: "./data/certs",
				},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Neynar: NeynarConfig{
			BaseURL:     "https://api.neynar.com",
			Timeout:     10 * time.Second,
			Concurrency: 8,
		},
		Catalog: CatalogConfig{
			BaseURL:      "https://api.meroku.store",
			StoreKey:     "farcaster",
			ExplorerURL:  "https://explorer.meroku.org",
			DappStoreURL: "https://dappstore.app",
			Timeout:      10 * time.Second,
			CacheTTL:     5 * time.Minute,
		},
		Hub: HubConfig{
			BaseURL: "https://hub.pinata.cloud",
			Timeout: 5 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:     5 * time.Second,
			MaxBodySize: 8 * 1024 * 1024, // 8MB
			MaxPixels:   4096 * 4096,
			Concurrency: 8,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			UseSSL: true,
			Prefix: "framecaster",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "framecaster",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Frames:  RateLimitEndpoint{Limit: 60, Window: time.Minute},
			Images:  RateLimitEndpoint{Limit: 120, Window: time.Minute},
			Mint:    RateLimitEndpoint{Limit: 10, Window: time.Minute},
		},
		Mint: MintConfig{
			CastsToCheck: 10,
		},
	}
}
