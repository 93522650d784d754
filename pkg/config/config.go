// Package config provides configuration loading and validation for chunkmap.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers      = errors.New("scan workers must not be negative")
	ErrInvalidSize         = errors.New("invalid max container size")
	ErrInvalidOrder        = errors.New("scan order must be origin or name")
	ErrInvalidStallWarning = errors.New("invalid stall warning duration")
	ErrInvalidLogLevel     = errors.New("invalid log level")
)

// EnvPrefix prefixes environment overrides, e.g. CHUNKMAP_SCAN_WORKERS.
const EnvPrefix = "CHUNKMAP"

// Config holds all configuration for chunkmap.
type Config struct {
	Scan          ScanConfig          `mapstructure:"scan"          yaml:"scan"`
	Cache         CacheConfig         `mapstructure:"cache"         yaml:"cache"`
	Logging       LoggingConfig       `mapstructure:"logging"       yaml:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ScanConfig controls region decoding.
type ScanConfig struct {
	// Workers is the pool width. Zero means one per CPU.
	Workers          int    `mapstructure:"workers"            yaml:"workers"`
	MaxContainerSize string `mapstructure:"max_container_size" yaml:"max_container_size"`
	Order            string `mapstructure:"order"              yaml:"order"`
	StallWarning     string `mapstructure:"stall_warning"      yaml:"stall_warning"`
}

// StallWarningDuration returns the parsed stall warning. Call after validation.
func (s ScanConfig) StallWarningDuration() time.Duration {
	d, err := time.ParseDuration(s.StallWarning)
	if err != nil {
		return 0
	}

	return d
}

// CacheConfig controls the snapshot cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Directory defaults to a cache directory next to the executable.
	Directory string `mapstructure:"directory" yaml:"directory"`
	Compress  bool   `mapstructure:"compress"  yaml:"compress"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json"  yaml:"json"`
}

// ObservabilityConfig holds telemetry export configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	// MetricsAddr serves Prometheus metrics while scanning when set.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// LoadConfig loads configuration from file and environment variables. With
// an empty path, .chunkmap.yaml is looked up in the working and home
// directories and its absence is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(".chunkmap")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Workers:          DefaultScanWorkers,
			MaxContainerSize: DefaultScanMaxContainerSize,
			Order:            DefaultScanOrder,
			StallWarning:     DefaultScanStallWarning,
		},
		Cache: CacheConfig{
			Enabled:   DefaultCacheEnabled,
			Directory: DefaultCacheDirectory,
			Compress:  DefaultCacheCompress,
		},
		Logging: LoggingConfig{
			Level: DefaultLoggingLevel,
			JSON:  DefaultLoggingJSON,
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: DefaultOTLPEndpoint,
			OTLPInsecure: DefaultOTLPInsecure,
			MetricsAddr:  DefaultMetricsAddr,
		},
	}
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return out, nil
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(viperCfg *viper.Viper) {
	defaults := Default()

	viperCfg.SetDefault("scan.workers", defaults.Scan.Workers)
	viperCfg.SetDefault("scan.max_container_size", defaults.Scan.MaxContainerSize)
	viperCfg.SetDefault("scan.order", defaults.Scan.Order)
	viperCfg.SetDefault("scan.stall_warning", defaults.Scan.StallWarning)

	viperCfg.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viperCfg.SetDefault("cache.directory", defaults.Cache.Directory)
	viperCfg.SetDefault("cache.compress", defaults.Cache.Compress)

	viperCfg.SetDefault("logging.level", defaults.Logging.Level)
	viperCfg.SetDefault("logging.json", defaults.Logging.JSON)

	viperCfg.SetDefault("observability.otlp_endpoint", defaults.Observability.OTLPEndpoint)
	viperCfg.SetDefault("observability.otlp_insecure", defaults.Observability.OTLPInsecure)
	viperCfg.SetDefault("observability.metrics_addr", defaults.Observability.MetricsAddr)
}

// Validate checks every field that has a constrained form.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Scan.Workers)
	}

	if c.Scan.MaxContainerSize != "" {
		_, err := humanize.ParseBytes(c.Scan.MaxContainerSize)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidSize, c.Scan.MaxContainerSize)
		}
	}

	switch strings.ToLower(c.Scan.Order) {
	case "", "origin", "name":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrder, c.Scan.Order)
	}

	if c.Scan.StallWarning != "" {
		d, err := time.ParseDuration(c.Scan.StallWarning)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidStallWarning, c.Scan.StallWarning)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}
