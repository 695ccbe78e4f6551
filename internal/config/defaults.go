package config

// normalize canonicalizes enumerated fields ahead of defaulting so defaults
// operate on clean values.
func normalize(config *Config) {
	config.Store.Driver = NormalizeStoreDriver(string(config.Store.Driver))
	config.Logging.Level = NormalizeLogLevel(string(config.Logging.Level))
	config.Logging.Format = NormalizeLogFormat(string(config.Logging.Format))
}

// applyDefaults fills in anything the file left unset.
func applyDefaults(config *Config) {
	if config.Version == "" {
		config.Version = "1.0"
	}

	if config.Store.DSN == "" && config.Store.Driver == StoreDriverSQLite {
		config.Store.DSN = "./eventrelay.db"
	}

	if config.Broker.URL == "" {
		config.Broker.URL = "nats://127.0.0.1:4222"
	}
	if config.Broker.Stream == "" {
		config.Broker.Stream = "RELAY_EVENTS"
	}
	if config.Broker.SubjectPrefix == "" {
		config.Broker.SubjectPrefix = "relay.events"
	}
	if config.Broker.DLQPrefix == "" {
		config.Broker.DLQPrefix = "relay.dlq"
	}
	if config.Broker.DedupeBucket == "" {
		config.Broker.DedupeBucket = "relay-dedupe"
	}
	if config.Broker.DedupeTTL == "" {
		config.Broker.DedupeTTL = "24h"
	}

	if config.Relay.PollInterval == "" {
		config.Relay.PollInterval = "5s"
	}
	if config.Relay.BatchSize == 0 {
		config.Relay.BatchSize = 100
	}
	if config.Relay.PublishConcurrency == 0 {
		config.Relay.PublishConcurrency = 4
	}
	if config.Relay.CleanupInterval == "" {
		config.Relay.CleanupInterval = "1h"
	}
	if config.Relay.Retention == "" {
		config.Relay.Retention = "168h"
	}
	if config.Relay.Backoff.Mode == "" {
		config.Relay.Backoff.Mode = "exponential"
	}
	if config.Relay.Backoff.InitialDelay == "" {
		config.Relay.Backoff.InitialDelay = "5s"
	}
	if config.Relay.Backoff.MaxDelay == "" {
		config.Relay.Backoff.MaxDelay = "10m"
	}
	if config.Relay.Backoff.MaxRetries == 0 {
		config.Relay.Backoff.MaxRetries = 5
	}

	if config.HTTP.Addr == "" {
		config.HTTP.Addr = ":8082"
	}
	if config.HTTP.MetricsPath == "" {
		config.HTTP.MetricsPath = "/metrics"
	}
	if config.HTTP.HealthPath == "" {
		config.HTTP.HealthPath = "/healthz"
	}

	if config.Health.PendingDegraded == 0 {
		config.Health.PendingDegraded = 100
	}
	if config.Health.FailedUnhealthy == 0 {
		config.Health.FailedUnhealthy = 10
	}
}
