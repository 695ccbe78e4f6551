package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/eventrelay/internal/logfields"
)

// WorkerConfig holds the supervision intervals for the relay loop.
type WorkerConfig struct {
	PollInterval    time.Duration // pending + failed pass
	CleanupInterval time.Duration // retention pass
	Retention       time.Duration // age before processed records are deleted
	DrainTimeout    time.Duration // budget for the final pass on shutdown
}

// DefaultWorkerConfig mirrors the deployment defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    5 * time.Second,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
		DrainTimeout:    10 * time.Second,
	}
}

// Worker is the supervised loop driving the relay service. An error or panic
// in one tick is logged and the next tick retries; nothing in a cycle is
// fatal to the process.
type Worker struct {
	svc       *Service
	cfg       WorkerConfig
	scheduler gocron.Scheduler
}

// NewWorker creates the relay worker with its own scheduler.
func NewWorker(svc *Service, cfg WorkerConfig) (*Worker, error) {
	def := DefaultWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create relay scheduler: %w", err)
	}

	return &Worker{svc: svc, cfg: cfg, scheduler: s}, nil
}

// Start registers the periodic jobs and begins the loop.
func (w *Worker) Start(ctx context.Context) error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.cfg.PollInterval),
		gocron.NewTask(w.tick),
		gocron.WithName("relay-poll"),
		// One cycle at a time; a slow broker must not stack cycles that
		// would race on the same records.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule relay poll: %w", err)
	}

	_, err = w.scheduler.NewJob(
		gocron.DurationJob(w.cfg.CleanupInterval),
		gocron.NewTask(w.cleanupTick),
		gocron.WithName("relay-cleanup"),
	)
	if err != nil {
		return fmt.Errorf("schedule relay cleanup: %w", err)
	}

	slog.Info("Starting relay worker",
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Duration("cleanup_interval", w.cfg.CleanupInterval))
	w.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, then runs one final best-effort pending pass
// to minimize in-flight loss. The drain's outcome is logged, never fatal.
func (w *Worker) Stop(ctx context.Context) error {
	slog.Info("Stopping relay worker")
	if err := w.scheduler.Shutdown(); err != nil {
		slog.Error("Error shutting down relay scheduler", logfields.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.DrainTimeout)
	defer cancel()
	if err := w.svc.ProcessPending(drainCtx); err != nil {
		slog.Warn("Final drain pass incomplete", logfields.Error(err))
	}
	return nil
}

// tick runs one pending + failed pass. Panics are contained so a bad cycle
// cannot take down the loop.
func (w *Worker) tick() {
	defer w.recoverPanic("relay poll")

	ctx := context.Background()
	if err := w.svc.ProcessPending(ctx); err != nil {
		slog.Error("Relay pending pass failed", logfields.Error(err))
	}
	if err := w.svc.ProcessFailed(ctx); err != nil {
		slog.Error("Relay retry pass failed", logfields.Error(err))
	}
}

func (w *Worker) cleanupTick() {
	defer w.recoverPanic("relay cleanup")

	if _, err := w.svc.CleanupProcessed(context.Background(), w.cfg.Retention); err != nil {
		slog.Error("Relay cleanup failed", logfields.Error(err))
	}
}

func (w *Worker) recoverPanic(job string) {
	if r := recover(); r != nil {
		slog.Error("Recovered panic in relay worker",
			slog.String("job", job), slog.Any("panic", r))
	}
}
