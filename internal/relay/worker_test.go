package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/eventrelay/internal/broker"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

func TestWorkerTickPublishesPending(t *testing.T) {
	pub := newFakePublisher(nil)
	svc, store, _ := newTestService(t, pub, Config{})
	w, err := NewWorker(svc, WorkerConfig{})
	require.NoError(t, err)

	ctx := t.Context()
	id, err := svc.AddEvent(ctx, "ContactCreated", []byte(`{}`), "corr-1")
	require.NoError(t, err)

	w.tick()

	got, err := store.GetByID(ctx, id.String())
	require.NoError(t, err)
	require.Equal(t, outbox.StatusProcessed, got.Status)
}

func TestWorkerTickSurvivesPanic(t *testing.T) {
	panicking := newFakePublisher(func(*outbox.Event) broker.PublishResult {
		panic("publisher blew up")
	})
	svc, _, _ := newTestService(t, panicking, Config{})
	w, err := NewWorker(svc, WorkerConfig{})
	require.NoError(t, err)

	_, err = svc.AddEvent(t.Context(), "ContactCreated", []byte(`{}`), "corr-1")
	require.NoError(t, err)

	require.NotPanics(t, w.tick)
}

func TestWorkerCleanupTick(t *testing.T) {
	pub := newFakePublisher(nil)
	svc, store, clock := newTestService(t, pub, Config{})
	w, err := NewWorker(svc, WorkerConfig{Retention: 24 * time.Hour})
	require.NoError(t, err)

	ctx := t.Context()
	id, err := svc.AddEvent(ctx, "ContactCreated", []byte(`{}`), "corr-1")
	require.NoError(t, err)
	require.NoError(t, svc.ProcessPending(ctx))

	clock.Advance(48 * time.Hour)
	w.cleanupTick()

	_, err = store.GetByID(ctx, id.String())
	require.ErrorIs(t, err, outbox.ErrNotFound)
}

func TestWorkerStopDrainsPending(t *testing.T) {
	pub := newFakePublisher(nil)
	svc, store, _ := newTestService(t, pub, Config{})
	w, err := NewWorker(svc, WorkerConfig{PollInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	// With an hour-long poll interval only the shutdown drain can deliver this.
	ctx := context.Background()
	id, err := svc.AddEvent(ctx, "ReportRequested", []byte(`{}`), "corr-1")
	require.NoError(t, err)

	require.NoError(t, w.Stop(ctx))

	got, err := store.GetByID(ctx, id.String())
	require.NoError(t, err)
	require.Equal(t, outbox.StatusProcessed, got.Status)
}

func TestWorkerStopDrainToleratesFailure(t *testing.T) {
	pub := newFakePublisher(func(*outbox.Event) broker.PublishResult {
		return broker.Retryable(errors.New("broker already gone"))
	})
	svc, _, _ := newTestService(t, pub, Config{})
	w, err := NewWorker(svc, WorkerConfig{PollInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	_, err = svc.AddEvent(context.Background(), "ReportRequested", []byte(`{}`), "corr-1")
	require.NoError(t, err)

	// Shutdown must complete regardless of the drain outcome.
	require.NoError(t, w.Stop(context.Background()))
}
