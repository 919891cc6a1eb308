package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tickflow       TickflowConfig       `yaml:"tickflow"`
	Channels       ChannelsConfig       `yaml:"channels"`
	Recorder       RecorderConfig       `yaml:"recorder"`
	Exchanges      ExchangesConfig      `yaml:"exchanges"`
	SymbolMappings SymbolMappingsConfig `yaml:"symbol_mappings"`
	Analytics      AnalyticsConfig      `yaml:"analytics"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Storage        StorageConfig        `yaml:"storage"`
	Logging        LoggingConfig        `yaml:"logging"`
}

type TickflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	MessageBuffer int `yaml:"message_buffer"`
}

// RecorderConfig controls the on-disk column store.
type RecorderConfig struct {
	DataPath           string        `yaml:"data_path"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
	MaxBufferedRecords int           `yaml:"max_buffered_records"`
}

type ExchangesConfig struct {
	Coinbase ExchangeConfig `yaml:"coinbase"`
	Binance  ExchangeConfig `yaml:"binance"`
	Kraken   ExchangeConfig `yaml:"kraken"`
	Okx      ExchangeConfig `yaml:"okx"`
	Bitfinex ExchangeConfig `yaml:"bitfinex"`
}

type ExchangeConfig struct {
	Enabled              bool          `yaml:"enabled"`
	WsEndpoint           string        `yaml:"ws_endpoint"`
	RestEndpoint         string        `yaml:"rest_endpoint"`
	MaxConnections       int           `yaml:"max_connections"`
	SymbolsPerConnection int           `yaml:"symbols_per_connection"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	Symbols              []string      `yaml:"symbols"`
}

type SymbolMappingsConfig struct {
	MappingsFile     string           `yaml:"mappings_file"`
	AutoDiscover     bool             `yaml:"auto_discover"`
	EquivalenceRules EquivalenceRules `yaml:"equivalence_rules"`
}

type EquivalenceRules struct {
	QuoteAssets []AssetGroup `yaml:"quote_assets"`
}

type AssetGroup struct {
	Group   string   `yaml:"group"`
	Members []string `yaml:"members"`
	Primary string   `yaml:"primary"`
}

type AnalyticsConfig struct {
	Enabled             bool          `yaml:"enabled"`
	LargeTradeThreshold float64       `yaml:"large_trade_threshold"`
	ReportInterval      time.Duration `yaml:"report_interval"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config drives the optional archiver that uploads completed day files.
type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	ScanInterval    time.Duration `yaml:"scan_interval"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	// Prefer an environment specific file for APP_ENV when it exists.
	if resolved := resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths); resolved != path {
		if _, err := os.Stat(resolved); err == nil {
			path = resolved
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{MessageBuffer: 10000},
		Recorder: RecorderConfig{
			FlushInterval:      5 * time.Second,
			MaxBufferedRecords: 8192,
		},
		Analytics: AnalyticsConfig{
			LargeTradeThreshold: 100000,
			ReportInterval:      30 * time.Second,
		},
		Metrics: MetricsConfig{Port: 8080},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// EnabledExchanges returns the enabled exchange configurations keyed by name.
func (c *Config) EnabledExchanges() map[string]ExchangeConfig {
	all := map[string]ExchangeConfig{
		"coinbase": c.Exchanges.Coinbase,
		"binance":  c.Exchanges.Binance,
		"kraken":   c.Exchanges.Kraken,
		"okx":      c.Exchanges.Okx,
		"bitfinex": c.Exchanges.Bitfinex,
	}
	enabled := make(map[string]ExchangeConfig)
	for name, ex := range all {
		if ex.Enabled {
			enabled[name] = ex
		}
	}
	return enabled
}

func validateConfig(cfg *Config) error {
	if cfg.Tickflow.Name == "" {
		return fmt.Errorf("tickflow.name is required")
	}

	if cfg.Tickflow.Version == "" {
		return fmt.Errorf("tickflow.version is required")
	}

	if cfg.Channels.MessageBuffer <= 0 {
		return fmt.Errorf("channels.message_buffer must be greater than 0")
	}

	if cfg.Recorder.DataPath == "" {
		return fmt.Errorf("recorder.data_path is required")
	}
	if cfg.Recorder.FlushInterval <= 0 {
		return fmt.Errorf("recorder.flush_interval must be greater than 0")
	}
	if cfg.Recorder.MaxBufferedRecords <= 0 {
		return fmt.Errorf("recorder.max_buffered_records must be greater than 0")
	}

	for name, ex := range cfg.EnabledExchanges() {
		if ex.WsEndpoint == "" {
			return fmt.Errorf("exchanges.%s.ws_endpoint is required when enabled", name)
		}
		if ex.MaxConnections <= 0 {
			return fmt.Errorf("exchanges.%s.max_connections must be greater than 0", name)
		}
		if ex.SymbolsPerConnection <= 0 {
			return fmt.Errorf("exchanges.%s.symbols_per_connection must be greater than 0", name)
		}
		if ex.ReconnectDelay <= 0 {
			return fmt.Errorf("exchanges.%s.reconnect_delay must be greater than 0", name)
		}
		if ex.MaxReconnectDelay < ex.ReconnectDelay {
			return fmt.Errorf("exchanges.%s.max_reconnect_delay must not be below reconnect_delay", name)
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port '%d' is invalid", cfg.Metrics.Port)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
		if cfg.Storage.S3.ScanInterval <= 0 {
			return fmt.Errorf("storage.s3.scan_interval must be greater than 0 when S3 is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
