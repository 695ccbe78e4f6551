// Package relay orchestrates the outbox: recording events next to domain
// writes, publishing pending and retryable records to the broker, retention
// cleanup, and the statistics the health surface reports on.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/broker"
	"git.home.luguber.info/inful/eventrelay/internal/logfields"
	"git.home.luguber.info/inful/eventrelay/internal/metrics"
	"git.home.luguber.info/inful/eventrelay/internal/observability"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
	"git.home.luguber.info/inful/eventrelay/internal/retry"
)

// Publisher sends one outbox record to the broker. Implementations must be
// stateless/reentrant; the service fans a batch out across goroutines.
type Publisher interface {
	Publish(ctx context.Context, ev *outbox.Event) broker.PublishResult
}

// Config bounds one relay pass.
type Config struct {
	BatchSize          int
	PublishConcurrency int
	Backoff            retry.Policy
}

// DefaultConfig returns the config used when fields are zero.
func DefaultConfig() Config {
	return Config{BatchSize: 100, PublishConcurrency: 4, Backoff: retry.DefaultPolicy()}
}

// Statistics is the observability contract consumed by health checks.
type Statistics struct {
	PendingCount    int64      `json:"pending_count"`
	FailedCount     int64      `json:"failed_count"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// Service drives outbox records through their state machine. Records move
// Pending→Processed, Pending→Failed, Failed→Processed and Failed→Failed;
// nothing ever leaves Processed.
type Service struct {
	store    outbox.Store
	pub      Publisher
	cfg      Config
	recorder metrics.Recorder
	now      func() time.Time

	mu              sync.Mutex
	lastProcessedAt *time.Time
}

// NewService wires a relay service over a store and a publisher.
func NewService(store outbox.Store, pub Publisher, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PublishConcurrency <= 0 {
		cfg.PublishConcurrency = def.PublishConcurrency
	}
	if cfg.Backoff.Validate() != nil {
		cfg.Backoff = def.Backoff
	}
	return &Service{
		store:    store,
		pub:      pub,
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
}

// WithRecorder swaps in a metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

// AddEvent durably records a fact for later delivery. It performs a database
// write only, never a network call, so the caller's transaction stays fast
// and local. An empty correlation id gets a generated one.
func (s *Service) AddEvent(ctx context.Context, eventType string, payload []byte, correlationID string) (uuid.UUID, error) {
	ev, err := buildEvent(eventType, payload, correlationID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return uuid.Nil, fmt.Errorf("add event: %w", err)
	}
	return ev.ID, nil
}

// AddEventTx records a fact inside the caller's SQLite domain transaction.
// The event exists iff the domain write commits.
func AddEventTx(ctx context.Context, store *outbox.SQLiteStore, ex outbox.Execer, eventType string, payload []byte, correlationID string) (uuid.UUID, error) {
	ev, err := buildEvent(eventType, payload, correlationID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := store.CreateIn(ctx, ex, ev); err != nil {
		return uuid.Nil, fmt.Errorf("add event: %w", err)
	}
	return ev.ID, nil
}

func buildEvent(eventType string, payload []byte, correlationID string) (*outbox.Event, error) {
	if eventType == "" {
		return nil, fmt.Errorf("add event: event type is required")
	}
	// An empty non-nil payload would fail to marshal as json.RawMessage at
	// publish time; normalize it so the record stays deliverable.
	if len(payload) == 0 {
		payload = nil
	}
	if payload != nil && !json.Valid(payload) {
		return nil, fmt.Errorf("add event: payload is not valid JSON")
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return outbox.New(eventType, payload, correlationID), nil
}

// ProcessPending publishes one batch of pending records. A store error aborts
// the cycle and propagates; publish failures are recorded per record and
// never abort the batch.
func (s *Service) ProcessPending(ctx context.Context) error {
	started := s.now()
	batch, err := s.store.GetPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending events: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	observability.DebugContext(ctx, "Publishing pending events", logfields.Count(len(batch)))
	s.publishBatch(ctx, batch)
	s.recorder.ObserveRelayCycle(s.now().Sub(started))
	return nil
}

// ProcessFailed re-attempts failed records whose backoff has elapsed.
func (s *Service) ProcessFailed(ctx context.Context) error {
	batch, err := s.store.GetRetryableFailed(ctx, s.cfg.BatchSize, s.now().UTC())
	if err != nil {
		return fmt.Errorf("fetch retryable events: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	observability.DebugContext(ctx, "Retrying failed events", logfields.Count(len(batch)))
	s.publishBatch(ctx, batch)
	return nil
}

// publishBatch fans records out with bounded parallelism. Per-record Update
// calls are individually atomic, so concurrent workers never interleave on
// the same record within one batch.
func (s *Service) publishBatch(ctx context.Context, batch []*outbox.Event) {
	sem := make(chan struct{}, s.cfg.PublishConcurrency)
	var wg sync.WaitGroup
	for _, ev := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(ev *outbox.Event) {
			defer wg.Done()
			defer func() { <-sem }()
			s.publishOne(ctx, ev)
		}(ev)
	}
	wg.Wait()
}

func (s *Service) publishOne(ctx context.Context, ev *outbox.Event) {
	ctx = observability.WithEventID(ctx, ev.ID.String())
	ctx = observability.WithEventType(ctx, ev.EventType)

	res := s.pub.Publish(ctx, ev)
	switch res.Outcome {
	case broker.OutcomeOK:
		now := s.now().UTC()
		ev.MarkProcessed(now)
		if err := s.store.Update(ctx, ev); err != nil {
			// The message went out but the bookkeeping write failed; the
			// record stays pending and will be republished. At-least-once
			// delivery makes that safe.
			observability.ErrorContext(ctx, "Failed to mark event processed", logfields.Error(err))
			return
		}
		s.noteProcessed(now)
		s.recorder.IncPublished(ev.EventType)
		observability.DebugContext(ctx, "Event published")

	case broker.OutcomePermanent:
		// Retrying cannot fix an unencodable record: fail it immediately
		// without consuming retry budget and leave it for an operator.
		ev.MarkFailed(res.Err.Error(), nil)
		if err := s.store.Update(ctx, ev); err != nil {
			observability.ErrorContext(ctx, "Failed to mark event failed", logfields.Error(err))
			return
		}
		s.recorder.IncPublishFailed(ev.EventType)
		observability.ErrorContext(ctx, "Event failed permanently", logfields.Error(res.Err))

	default: // retryable
		ev.RetryCount++
		var next *time.Time
		if s.cfg.Backoff.Exhausted(ev.RetryCount) {
			observability.WarnContext(ctx, "Event retry budget exhausted; awaiting operator",
				logfields.RetryCount(ev.RetryCount), logfields.Error(res.Err))
		} else {
			t := s.now().UTC().Add(s.cfg.Backoff.Delay(ev.RetryCount))
			next = &t
		}
		ev.MarkFailed(res.Err.Error(), next)
		if err := s.store.Update(ctx, ev); err != nil {
			observability.ErrorContext(ctx, "Failed to record retry attempt", logfields.Error(err))
			return
		}
		s.recorder.IncPublishFailed(ev.EventType)
		observability.WarnContext(ctx, "Event publish failed",
			logfields.RetryCount(ev.RetryCount), logfields.Error(res.Err))
	}
}

func (s *Service) noteProcessed(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastProcessedAt == nil || t.After(*s.lastProcessedAt) {
		s.lastProcessedAt = &t
	}
}

// CleanupProcessed deletes processed records older than the retention window.
// Pending and failed records are never touched: failures stay visible until
// an operator resolves them.
func (s *Service) CleanupProcessed(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("cleanup: retention must be positive")
	}
	cutoff := s.now().UTC().Add(-retention)
	deleted, err := s.store.DeleteProcessedOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup processed events: %w", err)
	}
	if deleted > 0 {
		observability.InfoContext(ctx, "Cleaned up processed events", logfields.Count(int(deleted)))
	}
	return deleted, nil
}

// Statistics reports backlog counts and the last successful delivery time.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("count pending: %w", err)
	}
	failed, err := s.store.CountFailed(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("count failed: %w", err)
	}

	s.mu.Lock()
	last := s.lastProcessedAt
	s.mu.Unlock()

	s.recorder.SetBacklog(pending, failed)
	return Statistics{PendingCount: pending, FailedCount: failed, LastProcessedAt: last}, nil
}

// Requeue resets a failed record to pending, including its retry counter.
// Operator action for records stuck past their retry budget.
func (s *Service) Requeue(ctx context.Context, id string) error {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	if ev.Status != outbox.StatusFailed {
		return fmt.Errorf("requeue %s: record is %s, only failed records can be requeued", id, ev.Status)
	}
	ev.Requeue()
	if err := s.store.Update(ctx, ev); err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	observability.InfoContext(ctx, "Event requeued by operator", logfields.EventID(id))
	return nil
}
