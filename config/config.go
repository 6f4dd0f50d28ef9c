package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Quantflow  QuantflowConfig  `yaml:"quantflow"`
	Logging    LoggingConfig    `yaml:"logging"`
	Venue      VenueConfig      `yaml:"venue"`
	DataEngine DataEngineConfig `yaml:"data_engine"`
	Simulation SimulationConfig `yaml:"simulation"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type QuantflowConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	TraderID string `yaml:"trader_id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type VenueConfig struct {
	Name              string          `yaml:"name"`
	Env               string          `yaml:"env"`
	WSURL             string          `yaml:"ws_url"`
	APIKey            string          `yaml:"api_key"`
	APISecret         string          `yaml:"api_secret"`
	Symbols           []string        `yaml:"symbols"`
	BookDepth         int             `yaml:"book_depth"`
	HeartbeatSecs     int             `yaml:"heartbeat_secs"`
	AuthTimeout       time.Duration   `yaml:"auth_timeout"`
	MaxArgsPerRequest int             `yaml:"max_args_per_request"`
	Reconnect         ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	InitialMs int     `yaml:"initial_ms"`
	MaxMs     int     `yaml:"max_ms"`
	Backoff   float64 `yaml:"backoff"`
	JitterMs  int     `yaml:"jitter_ms"`
	TimeoutMs int     `yaml:"timeout_ms"`
}

type DataEngineConfig struct {
	Debug                      bool                     `yaml:"debug"`
	BufferDeltas               bool                     `yaml:"buffer_deltas"`
	ValidateDataSequence       bool                     `yaml:"validate_data_sequence"`
	TimeBarsBuildWithNoUpdates bool                     `yaml:"time_bars_build_with_no_updates"`
	TimeBarsTimestampOnClose   bool                     `yaml:"time_bars_timestamp_on_close"`
	TimeBarsIntervalType       string                   `yaml:"time_bars_interval_type"`
	TimeBarsOrigins            map[string]time.Duration `yaml:"time_bars_origins"`
	ExternalClients            []string                 `yaml:"external_clients"`
}

type SimulationConfig struct {
	FrozenAccount           bool     `yaml:"frozen_account"`
	BarExecution            bool     `yaml:"bar_execution"`
	RejectStopOrders        bool     `yaml:"reject_stop_orders"`
	SupportGTDOrders        bool     `yaml:"support_gtd_orders"`
	SupportContingentOrders bool     `yaml:"support_contingent_orders"`
	UsePositionIDs          bool     `yaml:"use_position_ids"`
	UseRandomIDs            bool     `yaml:"use_random_ids"`
	UseReduceOnly           bool     `yaml:"use_reduce_only"`
	UseMessageQueue         bool     `yaml:"use_message_queue"`
	AccountType             string   `yaml:"account_type"`
	StartingBalances        []string `yaml:"starting_balances"`
	DefaultLeverage         float64  `yaml:"default_leverage"`
}

type CatalogConfig struct {
	Root             string   `yaml:"root"`
	EnsureContiguous bool     `yaml:"ensure_contiguous"`
	S3               S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		DataEngine: DataEngineConfig{
			TimeBarsTimestampOnClose: true,
			TimeBarsIntervalType:     "left-open",
		},
		Simulation: SimulationConfig{
			BarExecution:            true,
			SupportGTDOrders:        true,
			SupportContingentOrders: true,
			UseMessageQueue:         true,
			AccountType:             "cash",
		},
		Venue: VenueConfig{
			MaxArgsPerRequest: 10,
			AuthTimeout:       10 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	// Validate configuration
	config.Catalog.S3.Bucket = strings.TrimSpace(config.Catalog.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Quantflow.Name == "" {
		return fmt.Errorf("quantflow.name is required")
	}

	if cfg.Quantflow.Version == "" {
		return fmt.Errorf("quantflow.version is required")
	}

	if cfg.Venue.MaxArgsPerRequest <= 0 {
		return fmt.Errorf("venue.max_args_per_request must be greater than 0")
	}

	if cfg.Venue.Reconnect.Backoff != 0 && cfg.Venue.Reconnect.Backoff < 1 {
		return fmt.Errorf("venue.reconnect.backoff must be >= 1")
	}

	switch cfg.DataEngine.TimeBarsIntervalType {
	case "", "left-open", "right-open":
	default:
		return fmt.Errorf("data_engine.time_bars_interval_type must be 'left-open' or 'right-open'")
	}

	switch strings.ToLower(cfg.Simulation.AccountType) {
	case "", "cash", "margin":
	default:
		return fmt.Errorf("simulation.account_type must be 'cash' or 'margin'")
	}

	if cfg.Catalog.S3.Enabled && cfg.Catalog.S3.Bucket == "" {
		return fmt.Errorf("catalog.s3.bucket is required when catalog.s3.enabled")
	}

	return nil
}
