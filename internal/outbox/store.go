package outbox

import (
	"context"
	"time"
)

// Store defines persistence for event records with status-based querying.
// Only the relay mutates records after creation; the creating service only
// ever inserts, inside its own domain transaction.
type Store interface {
	// Create persists a new pending record. Returns ErrDuplicateID when the
	// identifier already exists.
	Create(ctx context.Context, ev *Event) error

	// GetByID retrieves a single record, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Event, error)

	// GetPending returns up to limit pending records, oldest first, so the
	// staleness of the backlog is bounded.
	GetPending(ctx context.Context, limit int) ([]*Event, error)

	// GetRetryableFailed returns up to limit failed records whose NextRetryAt
	// has passed, oldest first. Failed records with no NextRetryAt are never
	// returned; they wait for an operator.
	GetRetryableFailed(ctx context.Context, limit int, now time.Time) ([]*Event, error)

	// Update persists status/retry/error mutations of a single record.
	// Returns ErrImmutable when the stored record is already processed.
	Update(ctx context.Context, ev *Event) error

	// DeleteProcessedOlderThan bulk-deletes processed records delivered before
	// cutoff and reports how many were removed. Pending and failed records
	// are never touched.
	DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountPending and CountFailed are cheap aggregates for health reporting.
	CountPending(ctx context.Context) (int64, error)
	CountFailed(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
