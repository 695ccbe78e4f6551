// Package daemon assembles the relay process: outbox store, broker
// connection, relay worker, consumer workers for the built-in services, and
// the admin HTTP endpoint.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/eventrelay/internal/broker"
	"git.home.luguber.info/inful/eventrelay/internal/config"
	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/contact"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/health"
	"git.home.luguber.info/inful/eventrelay/internal/metrics"
	"git.home.luguber.info/inful/eventrelay/internal/notification"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
	"git.home.luguber.info/inful/eventrelay/internal/report"
	"git.home.luguber.info/inful/eventrelay/internal/retry"
)

const shutdownTimeout = 15 * time.Second

// Daemon owns the relay process lifecycle.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string

	store       outbox.Store
	sqlite      *outbox.SQLiteStore
	conn        *nats.Conn
	js          jetstream.JetStream
	relaySvc    *relay.Service
	relayWorker *relay.Worker
	watcher     *ConfigWatcher
	checker     *health.Checker
	adminServer *adminServer
	promReg     *prometheus.Registry
	recorder    *metrics.PrometheusRecorder

	workers       WorkerGroup
	stopConsumers context.CancelFunc
}

// New creates an unstarted daemon. configPath may be empty; the config
// watcher is then disabled.
func New(cfg *config.Config, configPath string) *Daemon {
	return &Daemon{cfg: cfg, configPath: configPath}
}

// Config returns the current configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Run starts every component and blocks until ctx is canceled, then shuts
// down in reverse order: producers drain before the broker connection drops.
func (d *Daemon) Run(ctx context.Context) error {
	configureLogging(d.cfg.Logging)
	slog.Info("Starting event relay daemon",
		"store_driver", string(d.cfg.Store.Driver), "broker_url", d.cfg.Broker.URL)

	if err := d.start(ctx); err != nil {
		d.shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")
	d.shutdown(context.Background())
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	if err := d.openStore(ctx); err != nil {
		return err
	}
	if err := d.connectBroker(ctx); err != nil {
		return err
	}

	d.promReg = prometheus.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(d.promReg)

	pub, err := broker.NewNATSPublisher(d.conn, d.cfg.Broker.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	d.relaySvc = relay.NewService(d.store, pub, relay.Config{
		BatchSize:          d.cfg.Relay.BatchSize,
		PublishConcurrency: d.cfg.Relay.PublishConcurrency,
		Backoff:            backoffPolicy(d.cfg.Relay.Backoff),
	}).WithRecorder(d.recorder)

	d.relayWorker, err = relay.NewWorker(d.relaySvc, relay.WorkerConfig{
		PollInterval:    d.cfg.Relay.PollIntervalOr(5 * time.Second),
		CleanupInterval: d.cfg.Relay.CleanupIntervalOr(time.Hour),
		Retention:       d.cfg.Relay.RetentionOr(7 * 24 * time.Hour),
	})
	if err != nil {
		return fmt.Errorf("create relay worker: %w", err)
	}
	if err := d.relayWorker.Start(ctx); err != nil {
		return fmt.Errorf("start relay worker: %w", err)
	}

	if err := d.startConsumers(ctx); err != nil {
		return err
	}

	d.checker = health.NewChecker(d.relaySvc, d.brokerConnected, health.Thresholds{
		PendingDegraded: d.cfg.Health.PendingDegraded,
		FailedUnhealthy: d.cfg.Health.FailedUnhealthy,
	})

	d.adminServer = newAdminServer(d.cfg.HTTP, d.checker, d.promReg, d.relaySvc)
	d.workers.Go(d.adminServer.run)

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		d.watcher = watcher
		if err := d.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
	}

	slog.Info("Event relay daemon started", "admin_addr", d.cfg.HTTP.Addr)
	return nil
}

func (d *Daemon) openStore(ctx context.Context) error {
	switch d.cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, d.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store, err := outbox.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return fmt.Errorf("initialize postgres outbox: %w", err)
		}
		d.store = store
	default:
		store, err := outbox.NewSQLiteStore(d.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite outbox: %w", err)
		}
		d.sqlite = store
		d.store = store
	}
	return nil
}

func (d *Daemon) connectBroker(ctx context.Context) error {
	conn, err := broker.Connect(d.cfg.Broker.URL, "eventrelay")
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	d.conn = conn

	// Dead-letter subjects live on the same stream so poison messages keep
	// JetStream retention instead of vanishing into core NATS.
	js, err := broker.EnsureStream(ctx, conn, d.cfg.Broker.Stream,
		[]string{d.cfg.Broker.SubjectPrefix + ".>", d.cfg.Broker.DLQPrefix + ".>"})
	if err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	d.js = js
	return nil
}

func (d *Daemon) brokerConnected() bool {
	return d.conn != nil && d.conn.Status() == nats.CONNECTED
}

// consumerSpec describes one consumer group and its subscriptions.
type consumerSpec struct {
	group    string
	types    []string
	register func(*consumer.Registry) error
}

// buildConsumerSpecs wires the enabled built-in services. They all share the
// daemon's SQLite database; config validation guarantees the driver.
func (d *Daemon) buildConsumerSpecs() ([]consumerSpec, error) {
	if d.sqlite == nil {
		return nil, nil
	}
	db := d.sqlite.DB()

	var specs []consumerSpec
	var contacts *contact.Store

	if d.cfg.Services.Contact.Enabled {
		store, err := contact.NewStore(db)
		if err != nil {
			return nil, err
		}
		contacts = store

		audit, err := contact.NewAuditStore(db)
		if err != nil {
			return nil, err
		}
		specs = append(specs, consumerSpec{
			group: "contact-audit",
			types: []string{events.TypeContactCreated, events.TypeContactUpdated, events.TypeContactDeleted},
			register: func(reg *consumer.Registry) error {
				return contact.RegisterAuditHandlers(reg, audit)
			},
		})
	}

	if d.cfg.Services.Report.Enabled {
		store, err := report.NewStore(db)
		if err != nil {
			return nil, err
		}
		var counter report.ContactCounter
		if contacts != nil {
			counter = contacts
		}
		svc := report.NewService(store, d.sqlite, counter)
		specs = append(specs, consumerSpec{
			group:    "report-service",
			types:    []string{events.TypeReportRequested},
			register: svc.RegisterHandlers,
		})
	}

	if d.cfg.Services.Notification.Enabled {
		store, err := notification.NewStore(db)
		if err != nil {
			return nil, err
		}
		svc := notification.NewService(store, notification.LogSender{})
		specs = append(specs, consumerSpec{
			group:    "notification-service",
			types:    []string{events.TypeReportCompleted},
			register: svc.RegisterHandlers,
		})
	}

	return specs, nil
}

func (d *Daemon) startConsumers(ctx context.Context) error {
	specs, err := d.buildConsumerSpecs()
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	if len(specs) == 0 {
		return nil
	}

	consumerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.stopConsumers = cancel

	for _, spec := range specs {
		reg := consumer.NewRegistry()
		if err := spec.register(reg); err != nil {
			return fmt.Errorf("register %s handlers: %w", spec.group, err)
		}

		subjects := make([]string, len(spec.types))
		for i, eventType := range spec.types {
			subjects[i] = d.cfg.Broker.SubjectPrefix + "." + eventType
		}

		cons, err := consumer.CreateConsumer(ctx, d.js, d.cfg.Broker.Stream, spec.group, subjects)
		if err != nil {
			return err
		}

		// One dedupe bucket per group keeps (eventType, correlation) keys
		// from colliding across groups.
		dedupe, err := consumer.NewKVDedupe(ctx, d.js,
			d.cfg.Broker.DedupeBucket+"-"+spec.group, d.cfg.Broker.DedupeTTLOr(24*time.Hour))
		if err != nil {
			return fmt.Errorf("create dedupe bucket for %s: %w", spec.group, err)
		}

		worker, err := consumer.NewWorker(cons, reg, consumer.DefaultConfig(spec.group))
		if err != nil {
			return err
		}
		worker.WithDedupe(dedupe).
			WithDeadLetter(broker.NewNATSDeadLetter(d.js, d.cfg.Broker.DLQPrefix, spec.group)).
			WithRecorder(d.recorder)

		d.workers.Go(func() {
			if err := worker.Run(consumerCtx); err != nil {
				slog.Error("Consumer worker exited with error", "group", spec.group, "error", err)
			}
		})
	}
	return nil
}

func (d *Daemon) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.relayWorker != nil {
		if err := d.relayWorker.Stop(ctx); err != nil {
			slog.Warn("Relay worker stop failed", "error", err)
		}
	}
	if d.stopConsumers != nil {
		d.stopConsumers()
	}
	if d.adminServer != nil {
		d.adminServer.stop(ctx)
	}
	if err := d.workers.StopAndWait(ctx); err != nil {
		slog.Warn("Workers did not stop in time", "error", err)
	}
	if d.conn != nil {
		if err := d.conn.Drain(); err != nil {
			slog.Warn("Broker drain failed", "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("Store close failed", "error", err)
		}
	}
	slog.Info("Event relay daemon stopped")
}

// ReloadConfig applies a changed configuration. Logging and health
// thresholds take effect immediately; store, broker and relay topology
// changes need a restart and are only logged.
func (d *Daemon) ReloadConfig(_ context.Context, newCfg *config.Config) error {
	d.mu.Lock()
	old := d.cfg
	d.cfg = newCfg
	d.mu.Unlock()

	configureLogging(newCfg.Logging)

	if d.checker != nil {
		d.checker.SetThresholds(health.Thresholds{
			PendingDegraded: newCfg.Health.PendingDegraded,
			FailedUnhealthy: newCfg.Health.FailedUnhealthy,
		})
	}

	if old.Store != newCfg.Store || old.Broker != newCfg.Broker {
		slog.Warn("Store or broker configuration changed; restart required for it to take effect")
	}
	if old.Relay != newCfg.Relay {
		slog.Warn("Relay tuning changed; restart required for it to take effect")
	}
	if old.HTTP != newCfg.HTTP {
		slog.Warn("Admin HTTP configuration changed; restart required for it to take effect")
	}
	return nil
}

func backoffPolicy(cfg config.BackoffConfig) retry.Policy {
	return retry.NewPolicy(
		retry.BackoffMode(cfg.Mode),
		cfg.InitialDelayOr(5*time.Second),
		cfg.MaxDelayOr(10*time.Minute),
		cfg.MaxRetries,
	)
}
