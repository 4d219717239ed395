// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
}

// LoggerConfig defines the logging configuration.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NetworkConfig holds settings for the outbound HTTP client.
type NetworkConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	ProxyURL        string            `mapstructure:"proxy_url" yaml:"proxy_url"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2      bool              `mapstructure:"force_http2" yaml:"force_http2"`
	Retry           RetryConfig       `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig controls how transient download failures are retried.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// FetchConfig describes what to download and where to put it.
type FetchConfig struct {
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	FilePattern string   `mapstructure:"file_pattern" yaml:"file_pattern"`
	OutputDir   string   `mapstructure:"output_dir" yaml:"output_dir"`
	Names       []string `mapstructure:"names" yaml:"names"`
	NamesFile   string   `mapstructure:"names_file" yaml:"names_file"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	// RateLimit is in requests per second. Zero or less disables limiting.
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Overwrite   bool    `mapstructure:"overwrite" yaml:"overwrite"`
	ValidatePNG bool    `mapstructure:"validate_png" yaml:"validate_png"`
	MaxBytes    int64   `mapstructure:"max_bytes" yaml:"max_bytes"`
	Manifest    string  `mapstructure:"manifest" yaml:"manifest"`
	Strict      bool    `mapstructure:"strict" yaml:"strict"`
}

// DefaultUserAgent mimics a desktop Chrome build. Some wiki CDNs reject the Go default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHooks()); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "iconfetch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.user_agent", DefaultUserAgent)
	v.SetDefault("network.proxy_url", "")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", true)
	v.SetDefault("network.retry.max_retries", 2)
	v.SetDefault("network.retry.initial_backoff", "500ms")
	v.SetDefault("network.retry.max_backoff", "10s")

	// -- Fetch --
	v.SetDefault("fetch.base_url", "https://oldschool.runescape.wiki/images/")
	v.SetDefault("fetch.file_pattern", "{name}_icon.png")
	v.SetDefault("fetch.output_dir", "icons")
	v.SetDefault("fetch.names_file", "")
	v.SetDefault("fetch.concurrency", 1)
	v.SetDefault("fetch.rate_limit", 2.0)
	v.SetDefault("fetch.overwrite", true)
	v.SetDefault("fetch.validate_png", true)
	v.SetDefault("fetch.max_bytes", 5<<20)
	v.SetDefault("fetch.manifest", "")
	v.SetDefault("fetch.strict", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHooks()); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envOnlyKeys have no scalar default, so AutomaticEnv cannot discover them
// and they must be bound explicitly.
var envOnlyKeys = []string{"fetch.names", "network.headers"}

// BindEnv enables environment overrides under prefix, e.g.
// PREFIX_FETCH_OUTPUT_DIR. Lists are comma separated
// (PREFIX_FETCH_NAMES=Attack,Magic) and maps are comma separated key=value
// pairs (PREFIX_NETWORK_HEADERS=Referer=https://example.org/).
func BindEnv(v *viper.Viper, prefix string) error {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// decodeHooks extends viper's default hooks with map decoding, so values
// from the environment can fill map fields.
func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToStringMapHook(),
	))
}

// stringToStringMapHook decodes "k1=v1,k2=v2" into a map[string]string.
func stringToStringMapHook() mapstructure.DecodeHookFuncType {
	mapType := reflect.TypeOf(map[string]string{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != mapType {
			return data, nil
		}
		out := map[string]string{}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return out, nil
		}
		for _, pair := range strings.Split(raw, ",") {
			key, value, ok := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("%q is not a key=value pair", pair)
			}
			out[key] = strings.TrimSpace(value)
		}
		return out, nil
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network configuration invalid: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the network settings.
func (n *NetworkConfig) Validate() error {
	if n.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if n.ProxyURL != "" {
		u, err := url.Parse(n.ProxyURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("proxy_url %q is not a valid URL", n.ProxyURL)
		}
	}
	if n.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if n.Retry.MaxRetries > 0 && n.Retry.InitialBackoff <= 0 {
		return fmt.Errorf("retry.initial_backoff must be positive when retries are enabled")
	}
	return nil
}

// Validate checks the fetch settings.
func (f *FetchConfig) Validate() error {
	u, err := url.Parse(f.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http(s) URL", f.BaseURL)
	}
	if !strings.Contains(f.FilePattern, "{name}") {
		return fmt.Errorf("file_pattern %q must contain the {name} placeholder", f.FilePattern)
	}
	if f.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if f.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if f.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be a positive integer")
	}
	return nil
}
