package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for values the daemon cannot run with.
// It assumes normalize and applyDefaults have already run.
func Validate(config *Config) error {
	switch config.Store.Driver {
	case StoreDriverSQLite, StoreDriverPostgres:
	default:
		return fmt.Errorf("store: unknown driver %q", config.Store.Driver)
	}
	if config.Store.DSN == "" {
		return fmt.Errorf("store: dsn is required for driver %s", config.Store.Driver)
	}

	if config.Broker.URL == "" {
		return fmt.Errorf("broker: url is required")
	}
	if err := checkDuration("broker.dedupe_ttl", config.Broker.DedupeTTL); err != nil {
		return err
	}

	if config.Relay.BatchSize <= 0 {
		return fmt.Errorf("relay: batch_size must be positive, got %d", config.Relay.BatchSize)
	}
	if config.Relay.PublishConcurrency <= 0 {
		return fmt.Errorf("relay: publish_concurrency must be positive, got %d", config.Relay.PublishConcurrency)
	}
	if config.Relay.Backoff.MaxRetries < 0 {
		return fmt.Errorf("relay: backoff.max_retries cannot be negative, got %d", config.Relay.Backoff.MaxRetries)
	}
	for name, raw := range map[string]string{
		"relay.poll_interval":         config.Relay.PollInterval,
		"relay.cleanup_interval":      config.Relay.CleanupInterval,
		"relay.retention":             config.Relay.Retention,
		"relay.backoff.initial_delay": config.Relay.Backoff.InitialDelay,
		"relay.backoff.max_delay":     config.Relay.Backoff.MaxDelay,
	} {
		if err := checkDuration(name, raw); err != nil {
			return err
		}
	}

	switch config.Relay.Backoff.Mode {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("relay: backoff.mode must be fixed, linear or exponential, got %q", config.Relay.Backoff.Mode)
	}

	// The built-in services join their domain writes and outbox inserts in
	// one sqlite transaction; they have no postgres storage layer.
	if config.Store.Driver != StoreDriverSQLite && anyServiceEnabled(config.Services) {
		return fmt.Errorf("services: built-in services require the sqlite store driver")
	}

	if config.Health.PendingDegraded <= 0 {
		return fmt.Errorf("health: pending_degraded must be positive, got %d", config.Health.PendingDegraded)
	}
	if config.Health.FailedUnhealthy <= 0 {
		return fmt.Errorf("health: failed_unhealthy must be positive, got %d", config.Health.FailedUnhealthy)
	}

	return nil
}

func anyServiceEnabled(s ServicesConfig) bool {
	return s.Report.Enabled || s.Notification.Enabled || s.Contact.Enabled
}

func checkDuration(name, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", name, raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: duration must be positive, got %s", name, raw)
	}
	return nil
}
