// Package config loads and validates the relay configuration. Configuration
// is a YAML file with environment variable expansion; a .env file alongside
// the process is loaded first so secrets stay out of the YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level relay configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Store    StoreConfig    `yaml:"store"`
	Broker   BrokerConfig   `yaml:"broker"`
	Relay    RelayConfig    `yaml:"relay"`
	Services ServicesConfig `yaml:"services,omitempty"`
	HTTP     HTTPConfig     `yaml:"http,omitempty"`
	Health   HealthConfig   `yaml:"health,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// StoreConfig selects the outbox backing store.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"` // sqlite|postgres
	DSN    string      `yaml:"dsn"`    // file path for sqlite, connection URL for postgres
}

// BrokerConfig describes the message broker connection and naming.
type BrokerConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
	DLQPrefix     string `yaml:"dlq_prefix"`
	DedupeBucket  string `yaml:"dedupe_bucket"`
	DedupeTTL     string `yaml:"dedupe_ttl"`
}

// RelayConfig tunes the outbox polling worker.
type RelayConfig struct {
	PollInterval       string        `yaml:"poll_interval"`
	BatchSize          int           `yaml:"batch_size"`
	PublishConcurrency int           `yaml:"publish_concurrency"`
	CleanupInterval    string        `yaml:"cleanup_interval"`
	Retention          string        `yaml:"retention"`
	Backoff            BackoffConfig `yaml:"backoff,omitempty"`
}

// BackoffConfig shapes the retry schedule for failed publishes.
type BackoffConfig struct {
	Mode         string `yaml:"mode,omitempty"` // fixed|linear|exponential
	InitialDelay string `yaml:"initial_delay,omitempty"`
	MaxDelay     string `yaml:"max_delay,omitempty"`
	MaxRetries   int    `yaml:"max_retries,omitempty"`
}

// ServicesConfig toggles the built-in demo services that produce and consume
// events through the relay.
type ServicesConfig struct {
	Report       ServiceConfig `yaml:"report,omitempty"`
	Notification ServiceConfig `yaml:"notification,omitempty"`
	Contact      ServiceConfig `yaml:"contact,omitempty"`
}

// ServiceConfig enables one built-in service.
type ServiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPConfig configures the admin endpoint serving health and metrics.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
	HealthPath  string `yaml:"health_path,omitempty"`
}

// HealthConfig sets the backlog thresholds behind the health verdict.
type HealthConfig struct {
	PendingDegraded int64 `yaml:"pending_degraded,omitempty"`
	FailedUnhealthy int64 `yaml:"failed_unhealthy,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Load reads, expands, normalizes, defaults and validates a configuration
// file.
func Load(configPath string) (*Config, error) {
	// Secrets live in .env next to the process, never in the YAML itself.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Note: .env file couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML. Environment variables in the content
// are expanded before unmarshalling.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Version != "" && config.Version != "1.0" {
		return nil, fmt.Errorf("unsupported configuration version: %s (expected 1.0)", config.Version)
	}

	normalize(&config)
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Version: "1.0",
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			DSN:    "./eventrelay.db",
		},
		Broker: BrokerConfig{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "RELAY_EVENTS",
			SubjectPrefix: "relay.events",
			DLQPrefix:     "relay.dlq",
			DedupeBucket:  "relay-dedupe",
			DedupeTTL:     "24h",
		},
		Relay: RelayConfig{
			PollInterval:       "5s",
			BatchSize:          100,
			PublishConcurrency: 4,
			CleanupInterval:    "1h",
			Retention:          "168h",
			Backoff: BackoffConfig{
				Mode:         "exponential",
				InitialDelay: "5s",
				MaxDelay:     "10m",
				MaxRetries:   5,
			},
		},
		Services: ServicesConfig{
			Report:       ServiceConfig{Enabled: true},
			Notification: ServiceConfig{Enabled: true},
			Contact:      ServiceConfig{Enabled: true},
		},
		HTTP: HTTPConfig{
			Addr:        ":8082",
			MetricsPath: "/metrics",
			HealthPath:  "/healthz",
		},
		Health: HealthConfig{
			PendingDegraded: 100,
			FailedUnhealthy: 10,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Duration accessors assume a validated config; on unvalidated input they
// fall back to the given default rather than panicking.

func (c RelayConfig) PollIntervalOr(def time.Duration) time.Duration {
	return durationOr(c.PollInterval, def)
}

func (c RelayConfig) CleanupIntervalOr(def time.Duration) time.Duration {
	return durationOr(c.CleanupInterval, def)
}

func (c RelayConfig) RetentionOr(def time.Duration) time.Duration {
	return durationOr(c.Retention, def)
}

func (c BackoffConfig) InitialDelayOr(def time.Duration) time.Duration {
	return durationOr(c.InitialDelay, def)
}

func (c BackoffConfig) MaxDelayOr(def time.Duration) time.Duration {
	return durationOr(c.MaxDelay, def)
}

func (c BrokerConfig) DedupeTTLOr(def time.Duration) time.Duration {
	return durationOr(c.DedupeTTL, def)
}

func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
