package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig
	RateLimit RateLimitConfig
	Logging   LogConfig
	Extension ExtensionConfig
	Variant   VariantConfig
	Cache     CacheConfig
	HTTP      HTTPConfig
	CDP       CDPConfig
	Sandbox   SandboxConfig
	Options   OptionsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// RateLimitConfig limits API callers per IP.
type RateLimitConfig struct {
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ExtensionConfig locates the host's own pages. Root is the prefix of the
// virtual script URLs (<root><name>.user.js#<id>).
type ExtensionConfig struct {
	Root        string `envconfig:"EXTENSION_ROOT" default:"http://localhost:8000/"`
	OptionsPage string `envconfig:"EXTENSION_OPTIONS_PAGE" default:"options/index.html"`
	ConfirmPage string `envconfig:"EXTENSION_CONFIRM_PAGE" default:"confirm/index.html"`
}

// OptionsURL returns the absolute options page URL.
func (e ExtensionConfig) OptionsURL() string {
	return e.Root + strings.TrimPrefix(e.OptionsPage, "/")
}

// ConfirmURLBase returns the confirm page URL up to and including '#'.
func (e ExtensionConfig) ConfirmURLBase() string {
	return e.Root + strings.TrimPrefix(e.ConfirmPage, "/") + "#"
}

// VariantConfig describes the browser the host drives.
type VariantConfig struct {
	// Name is "chrome" or "firefox".
	Name    string `envconfig:"BROWSER" default:"chrome"`
	Version int    `envconfig:"BROWSER_VERSION" default:"120"`
	// AllowPrivateReplace lets a private browsing context reuse its own tab
	// for the confirmation page.
	AllowPrivateReplace bool `envconfig:"BROWSER_PRIVATE_REPLACE" default:"false"`
	// FileSchemeRequestable reports whether file: URLs can be fetched directly.
	FileSchemeRequestable bool `envconfig:"BROWSER_FILE_REQUESTABLE" default:"true"`
}

// IsFirefox reports whether the variant is Firefox-like.
func (v VariantConfig) IsFirefox() bool {
	return strings.EqualFold(v.Name, "firefox")
}

// CacheConfig holds marker and record lifetimes.
type CacheConfig struct {
	BypassTTL    time.Duration `envconfig:"CACHE_BYPASS_TTL" default:"10s"`
	AutocloseTTL time.Duration `envconfig:"CACHE_AUTOCLOSE_TTL" default:"10s"`
	CodeTTL      time.Duration `envconfig:"CACHE_CODE_TTL" default:"3s"`
	ConfirmTTL   time.Duration `envconfig:"CACHE_CONFIRM_TTL" default:"10m"`
	Sweep        time.Duration `envconfig:"CACHE_SWEEP" default:"1s"`
}

// HTTPConfig holds the trusted HTTP client settings.
type HTTPConfig struct {
	Timeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	Retries    int           `envconfig:"HTTP_RETRIES" default:"2"`
	RateLimit  float64       `envconfig:"HTTP_RATE_LIMIT" default:"0"`
	UserAgent  string        `envconfig:"HTTP_USER_AGENT" default:"scripthost/1.0"`
	MaxBodyMiB int64         `envconfig:"HTTP_MAX_BODY_MIB" default:"32"`
}

// CDPConfig enables driving a real browser over the DevTools protocol.
type CDPConfig struct {
	URL     string `envconfig:"CDP_URL" default:"http://127.0.0.1:9222"`
	Enabled bool   `envconfig:"CDP_ENABLED" default:"false"`
}

// SandboxConfig limits page contexts.
type SandboxConfig struct {
	// Timeout bounds one script run, including the requests it waits for.
	Timeout   time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"30s"`
	StackSize int           `envconfig:"SANDBOX_STACK_SIZE" default:"1024"`
}

// OptionsConfig points at the user options file.
type OptionsConfig struct {
	Path string `envconfig:"OPTIONS_PATH" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Extension: ExtensionConfig{
			Root:        "http://localhost:8000/",
			OptionsPage: "options/index.html",
			ConfirmPage: "confirm/index.html",
		},
		Variant: VariantConfig{
			Name:                  "chrome",
			Version:               120,
			FileSchemeRequestable: true,
		},
		Cache: CacheConfig{
			BypassTTL:    10 * time.Second,
			AutocloseTTL: 10 * time.Second,
			CodeTTL:      3 * time.Second,
			ConfirmTTL:   10 * time.Minute,
			Sweep:        time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			Retries:    2,
			UserAgent:  "scripthost/1.0",
			MaxBodyMiB: 32,
		},
		CDP: CDPConfig{
			URL: "http://127.0.0.1:9222",
		},
		Sandbox: SandboxConfig{
			Timeout:   30 * time.Second,
			StackSize: 1024,
		},
	}
}
