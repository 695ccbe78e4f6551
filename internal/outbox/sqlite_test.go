package outbox

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetPending(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	payload := []byte(`{"reportId":"r-1"}`)
	ev := New("ReportRequested", payload, "corr-1")
	if err := store.Create(ctx, ev); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	pending, err := store.GetPending(ctx, 1)
	if err != nil {
		t.Fatalf("failed to get pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}

	got := pending[0]
	if got.ID != ev.ID {
		t.Errorf("expected id %s, got %s", ev.ID, got.ID)
	}
	if got.Status != StatusPending {
		t.Errorf("expected status pending, got %s", got.Status)
	}
	if got.EventType != "ReportRequested" {
		t.Errorf("expected type ReportRequested, got %s", got.EventType)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("expected payload %s, got %s", payload, got.Payload)
	}
	if got.CorrelationID != "corr-1" {
		t.Errorf("expected correlation corr-1, got %s", got.CorrelationID)
	}
	if got.ProcessedAt != nil || got.NextRetryAt != nil {
		t.Error("fresh record must have no processed/retry timestamps")
	}
}

func TestCreateDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	ev := New("ContactCreated", []byte(`{}`), "corr-1")
	if err := store.Create(ctx, ev); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	dup := New("ContactCreated", []byte(`{}`), "corr-2")
	dup.ID = ev.ID
	err := store.Create(ctx, dup)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGetPendingOrdersOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	base := time.Now().UTC()
	var ids []string
	for i := range 3 {
		ev := New("ContactCreated", []byte(`{}`), "corr")
		// Reverse creation order so insertion order cannot mask a bug.
		ev.CreatedAt = base.Add(time.Duration(2-i) * time.Minute)
		if err := store.Create(ctx, ev); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
		ids = append(ids, ev.ID.String())
	}

	pending, err := store.GetPending(ctx, 10)
	if err != nil {
		t.Fatalf("failed to get pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending events, got %d", len(pending))
	}
	// ids[2] has the oldest CreatedAt.
	if pending[0].ID.String() != ids[2] || pending[2].ID.String() != ids[0] {
		t.Errorf("pending events not ordered oldest first: %v", pending)
	}
}

func TestGetPendingRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	for range 5 {
		if err := store.Create(ctx, New("ContactCreated", []byte(`{}`), "corr")); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}

	pending, err := store.GetPending(ctx, 2)
	if err != nil {
		t.Fatalf("failed to get pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(pending))
	}
}

func TestGetRetryableFailedFiltersOnNextRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	due := New("ReportRequested", []byte(`{}`), "corr-due")
	past := now.Add(-time.Minute)
	due.RetryCount = 1
	due.MarkFailed("broker unreachable", &past)

	notDue := New("ReportRequested", []byte(`{}`), "corr-later")
	future := now.Add(time.Hour)
	notDue.RetryCount = 1
	notDue.MarkFailed("broker unreachable", &future)

	exhausted := New("ReportRequested", []byte(`{}`), "corr-stuck")
	exhausted.RetryCount = 5
	exhausted.MarkFailed("broker unreachable", nil)

	for _, ev := range []*Event{due, notDue, exhausted} {
		if err := store.Create(ctx, ev); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}

	retryable, err := store.GetRetryableFailed(ctx, 10, now)
	if err != nil {
		t.Fatalf("failed to get retryable: %v", err)
	}
	if len(retryable) != 1 {
		t.Fatalf("expected exactly 1 retryable event, got %d", len(retryable))
	}
	if retryable[0].ID != due.ID {
		t.Errorf("expected due event %s, got %s", due.ID, retryable[0].ID)
	}
	if retryable[0].ErrorMessage != "broker unreachable" {
		t.Errorf("unexpected error message %q", retryable[0].ErrorMessage)
	}
}

func TestUpdateTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	ev := New("ReportCompleted", []byte(`{}`), "corr-1")
	if err := store.Create(ctx, ev); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	next := time.Now().UTC().Add(30 * time.Second)
	ev.RetryCount = 1
	ev.MarkFailed("timeout", &next)
	if err := store.Update(ctx, ev); err != nil {
		t.Fatalf("failed to update to failed: %v", err)
	}

	got, err := store.GetByID(ctx, ev.ID.String())
	if err != nil {
		t.Fatalf("failed to get by id: %v", err)
	}
	if got.Status != StatusFailed || got.RetryCount != 1 || got.ErrorMessage != "timeout" {
		t.Errorf("failed state not persisted: %+v", got)
	}
	if got.NextRetryAt == nil || got.NextRetryAt.UnixMilli() != next.UnixMilli() {
		t.Errorf("next retry not persisted: %v", got.NextRetryAt)
	}

	ev.MarkProcessed(time.Now().UTC())
	if err := store.Update(ctx, ev); err != nil {
		t.Fatalf("failed to update to processed: %v", err)
	}
	got, err = store.GetByID(ctx, ev.ID.String())
	if err != nil {
		t.Fatalf("failed to get by id: %v", err)
	}
	if got.Status != StatusProcessed || got.ProcessedAt == nil {
		t.Errorf("processed state not persisted: %+v", got)
	}
	if got.NextRetryAt != nil || got.ErrorMessage != "" {
		t.Errorf("processed record must clear retry bookkeeping: %+v", got)
	}
}

func TestUpdateProcessedIsImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	ev := New("ReportCompleted", []byte(`{}`), "corr-1")
	if err := store.Create(ctx, ev); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	ev.MarkProcessed(time.Now().UTC())
	if err := store.Update(ctx, ev); err != nil {
		t.Fatalf("failed to mark processed: %v", err)
	}

	ev.Status = StatusPending
	err := store.Update(ctx, ev)
	if !errors.Is(err, ErrImmutable) {
		t.Fatalf("expected ErrImmutable, got %v", err)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	store := newTestStore(t)
	ev := New("ContactCreated", []byte(`{}`), "corr")
	err := store.Update(t.Context(), ev)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetByID(t.Context(), "c1a7d0f6-1111-2222-3333-444455556666")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProcessedOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	old := New("ContactCreated", []byte(`{}`), "corr-old")
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	old.MarkProcessed(now.Add(-8 * 24 * time.Hour))
	if err := store.Update(ctx, old); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	recent := New("ContactCreated", []byte(`{}`), "corr-recent")
	if err := store.Create(ctx, recent); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	recent.MarkProcessed(now.Add(-time.Hour))
	if err := store.Update(ctx, recent); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	pending := New("ContactCreated", []byte(`{}`), "corr-pending")
	if err := store.Create(ctx, pending); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	failed := New("ContactCreated", []byte(`{}`), "corr-failed")
	failed.RetryCount = 1
	failed.MarkFailed("err", nil)
	if err := store.Create(ctx, failed); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	deleted, err := store.DeleteProcessedOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("failed to delete processed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	// Cleanup is idempotent: a second pass with the same cutoff is a no-op.
	deleted, err = store.DeleteProcessedOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("failed second delete: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected no-op second delete, got %d", deleted)
	}

	// Pending and failed records were never candidates.
	if _, err := store.GetByID(ctx, pending.ID.String()); err != nil {
		t.Errorf("pending record must survive cleanup: %v", err)
	}
	if _, err := store.GetByID(ctx, failed.ID.String()); err != nil {
		t.Errorf("failed record must survive cleanup: %v", err)
	}
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	for range 2 {
		if err := store.Create(ctx, New("ContactCreated", []byte(`{}`), "corr")); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}
	failed := New("ContactCreated", []byte(`{}`), "corr")
	failed.RetryCount = 1
	failed.MarkFailed("err", nil)
	if err := store.Create(ctx, failed); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	pendingCount, err := store.CountPending(ctx)
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if pendingCount != 2 {
		t.Errorf("expected 2 pending, got %d", pendingCount)
	}
	failedCount, err := store.CountFailed(ctx)
	if err != nil {
		t.Fatalf("failed to count failed: %v", err)
	}
	if failedCount != 1 {
		t.Errorf("expected 1 failed, got %d", failedCount)
	}
}

func TestCreateInTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	ev := New("ReportRequested", []byte(`{}`), "corr-tx")
	if err := store.CreateIn(ctx, tx, ev); err != nil {
		t.Fatalf("failed to create in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	// The record must vanish with the aborted domain transaction.
	if _, err := store.GetByID(ctx, ev.ID.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after rollback, got %v", err)
	}
}

func TestCreateInTransactionCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	ev := New("ReportRequested", []byte(`{}`), "corr-tx")
	if err := store.CreateIn(ctx, tx, ev); err != nil {
		t.Fatalf("failed to create in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	got, err := store.GetByID(ctx, ev.ID.String())
	if err != nil {
		t.Fatalf("expected record after commit: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}
}
