package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/eventrelay/internal/broker"
	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/logfields"
	"git.home.luguber.info/inful/eventrelay/internal/metrics"
	"git.home.luguber.info/inful/eventrelay/internal/observability"
)

// Fetcher is the slice of jetstream.Consumer the worker needs; tests supply
// fakes.
type Fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Config tunes one consumer worker.
type Config struct {
	Group        string        // consumer group (JetStream durable name)
	FetchBatch   int           // messages per pull
	FetchMaxWait time.Duration // poll timeout when the stream is idle
}

// DefaultConfig supplies the usual fetch bounds.
func DefaultConfig(group string) Config {
	return Config{Group: group, FetchBatch: 32, FetchMaxWait: 5 * time.Second}
}

// Worker is one service's consumption loop. The position is committed (the
// message acked) only after the handler succeeds; a transient handler error
// leaves the message uncommitted so the broker redelivers it. Malformed
// messages go to the dead-letter subject instead of looping forever.
type Worker struct {
	fetcher  Fetcher
	registry *Registry
	dedupe   Dedupe
	dlq      broker.DeadLetter
	cfg      Config
	recorder metrics.Recorder
}

// NewWorker assembles a consumer worker. dedupe and dlq may be nil: without
// dedupe duplicates reach the handler, without a dlq malformed messages are
// terminated with only a log trail.
func NewWorker(fetcher Fetcher, registry *Registry, cfg Config) (*Worker, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("consumer worker: fetcher is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("consumer worker: registry is required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer worker: group is required")
	}
	def := DefaultConfig(cfg.Group)
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = def.FetchBatch
	}
	if cfg.FetchMaxWait <= 0 {
		cfg.FetchMaxWait = def.FetchMaxWait
	}
	return &Worker{
		fetcher:  fetcher,
		registry: registry,
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
	}, nil
}

// WithDedupe attaches duplicate suppression.
func (w *Worker) WithDedupe(d Dedupe) *Worker {
	w.dedupe = d
	return w
}

// WithDeadLetter attaches the dead-letter publisher.
func (w *Worker) WithDeadLetter(dlq broker.DeadLetter) *Worker {
	w.dlq = dlq
	return w
}

// WithRecorder swaps in a metrics recorder.
func (w *Worker) WithRecorder(r metrics.Recorder) *Worker {
	if r != nil {
		w.recorder = r
	}
	return w
}

// Run blocks consuming messages until the context is canceled. The message
// being handled when cancellation arrives finishes; nothing is aborted
// mid-flight.
func (w *Worker) Run(ctx context.Context) error {
	ctx = observability.WithConsumerGroup(ctx, w.cfg.Group)
	observability.InfoContext(ctx, "Consumer worker started",
		logfields.ConsumerGroup(w.cfg.Group))

	for {
		select {
		case <-ctx.Done():
			observability.InfoContext(ctx, "Consumer worker stopped")
			return nil
		default:
		}

		batch, err := w.fetcher.Fetch(w.cfg.FetchBatch, jetstream.FetchMaxWait(w.cfg.FetchMaxWait))
		if err != nil {
			observability.WarnContext(ctx, "Fetch failed; backing off", logfields.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range batch.Messages() {
			w.handle(ctx, msg)
		}
		if err := batch.Error(); err != nil {
			observability.WarnContext(ctx, "Fetch batch ended with error", logfields.Error(err))
		}
	}
}

// handle processes a single message and decides its fate: ack, nak, or
// dead-letter.
func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) {
	ctx = observability.WithSubject(ctx, msg.Subject())

	env, err := events.DecodeEnvelope(msg.Data())
	if err != nil {
		w.deadLetter(ctx, msg, err)
		return
	}

	ctx = correlation.With(ctx, env.CorrelationID)
	ctx = observability.WithEventType(ctx, env.EventType)

	handler, ok := w.registry.Lookup(env.EventType)
	if !ok {
		// A message this group can never route is poison for this group.
		w.deadLetter(ctx, msg, fmt.Errorf("no handler for event type %s", env.EventType))
		return
	}

	if w.dedupe != nil {
		seen, err := w.dedupe.Seen(ctx, env.EventType, env.CorrelationID)
		if err != nil {
			// Dedupe is best effort; prefer a possible duplicate over a stall.
			observability.WarnContext(ctx, "Dedupe lookup failed; processing anyway", logfields.Error(err))
		} else if seen {
			observability.InfoContext(ctx, "Skipping already-processed message")
			w.ack(ctx, msg)
			w.recorder.IncConsumed(w.cfg.Group, metrics.ConsumeDeduped)
			return
		}
	}

	if err := handler(ctx, env.Data); err != nil {
		if errors.Is(err, ErrMalformed) {
			w.deadLetter(ctx, msg, err)
			return
		}
		// Transient: stay uncommitted, let the broker redeliver.
		observability.WarnContext(ctx, "Handler failed; message will be redelivered", logfields.Error(err))
		if err := msg.Nak(); err != nil {
			observability.WarnContext(ctx, "Failed to nak message", logfields.Error(err))
		}
		w.recorder.IncConsumed(w.cfg.Group, metrics.ConsumeRetried)
		return
	}

	if w.dedupe != nil {
		if err := w.dedupe.Mark(ctx, env.EventType, env.CorrelationID); err != nil {
			observability.WarnContext(ctx, "Failed to mark message in dedupe store", logfields.Error(err))
		}
	}
	w.ack(ctx, msg)
	w.recorder.IncConsumed(w.cfg.Group, metrics.ConsumeAcked)
	observability.DebugContext(ctx, "Message processed")
}

func (w *Worker) ack(ctx context.Context, msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		observability.WarnContext(ctx, "Failed to ack message", logfields.Error(err))
	}
}

// deadLetter forwards a poison message and terminates it. If forwarding
// fails the message is nakked instead: better a redelivery loop an operator
// will notice than a silently lost fact.
func (w *Worker) deadLetter(ctx context.Context, msg jetstream.Msg, cause error) {
	observability.ErrorContext(ctx, "Dead-lettering message", logfields.Error(cause))

	if w.dlq != nil {
		if err := w.dlq.Publish(ctx, msg.Subject(), msg.Data(), msg.Headers()); err != nil {
			observability.ErrorContext(ctx, "Dead-letter publish failed; leaving message for redelivery", logfields.Error(err))
			if err := msg.Nak(); err != nil {
				observability.WarnContext(ctx, "Failed to nak message", logfields.Error(err))
			}
			return
		}
	}

	if err := msg.Term(); err != nil {
		observability.WarnContext(ctx, "Failed to terminate message", logfields.Error(err))
	}
	w.recorder.IncConsumed(w.cfg.Group, metrics.ConsumeDeadLetter)
}

// CreateConsumer creates or updates the durable pull consumer backing a
// worker. Instances sharing the durable name share delivery: each message is
// processed by exactly one instance of the group.
func CreateConsumer(ctx context.Context, js jetstream.JetStream, stream, group string, subjects []string) (jetstream.Consumer, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:        group,
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        30 * time.Second,
		MaxDeliver:     -1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s on stream %s: %w", group, stream, err)
	}
	return cons, nil
}
