package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts pgx query execution so outbox inserts can run inside the
// caller's transaction (pgx.Tx) or directly on the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// claimWindow is how long a fetched batch stays invisible to other relay
// instances. A relay that crashes mid-publish loses its claim after this
// window and the records are picked up again; at-least-once delivery makes
// the overlap safe.
const claimWindow = time.Minute

// PostgresStore implements Store on PostgreSQL. The fetch queries claim their
// batch in a single statement: a FOR UPDATE SKIP LOCKED select feeding an
// update that stamps claimed_at. Row locks only live for that statement, but
// the stamp persists through the publish window, so two relay instances
// polling the same database never publish the same records.
type PostgresStore struct {
	db   Querier
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS outbox_events (
	id UUID PRIMARY KEY,
	event_type VARCHAR(255) NOT NULL,
	payload BYTEA NOT NULL,
	correlation_id VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	status VARCHAR(50) NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	next_retry_at TIMESTAMPTZ,
	claimed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox_events (status, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_status_retry ON outbox_events (status, next_retry_at);
`

// NewPostgresStore creates the store and runs the schema migration.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("initialize outbox schema: %w", err)
	}
	return &PostgresStore{db: pool, pool: pool}, nil
}

// Create persists a new pending record.
func (s *PostgresStore) Create(ctx context.Context, ev *Event) error {
	return s.CreateIn(ctx, s.db, ev)
}

// CreateIn persists a new pending record through the given Querier, typically
// a pgx.Tx holding the caller's domain write.
func (s *PostgresStore) CreateIn(ctx context.Context, q Querier, ev *Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = []byte{} // NOT NULL column
	}
	_, err := q.Exec(ctx,
		`INSERT INTO outbox_events
		 (id, event_type, payload, correlation_id, created_at, processed_at, status, retry_count, error_message, next_retry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.EventType, payload, ev.CorrelationID,
		ev.CreatedAt, ev.ProcessedAt, string(ev.Status),
		ev.RetryCount, ev.ErrorMessage, ev.NextRetryAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert event %s: %w", ev.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const postgresSelectColumns = `id, event_type, payload, correlation_id, created_at, processed_at, status, retry_count, error_message, next_retry_at`

const postgresReturningColumns = `e.id, e.event_type, e.payload, e.correlation_id, e.created_at, e.processed_at, e.status, e.retry_count, e.error_message, e.next_retry_at`

// GetByID retrieves a single record.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+postgresSelectColumns+` FROM outbox_events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()

	events, err := scanPgxEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events[0], nil
}

// GetPending claims and returns up to limit pending records, oldest first.
// Records claimed by another instance within the claim window are skipped.
func (s *PostgresStore) GetPending(ctx context.Context, limit int) ([]*Event, error) {
	now := time.Now().UTC()
	rows, err := s.db.Query(ctx,
		`WITH batch AS (
			SELECT id FROM outbox_events
			WHERE status = $1 AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 UPDATE outbox_events AS e
		 SET claimed_at = $4
		 FROM batch
		 WHERE e.id = batch.id
		 RETURNING `+postgresReturningColumns,
		string(StatusPending), now.Add(-claimWindow), limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	defer rows.Close()

	return scanPgxEvents(rows)
}

// GetRetryableFailed claims and returns failed records whose retry time has
// passed, subject to the same claim window as GetPending.
func (s *PostgresStore) GetRetryableFailed(ctx context.Context, limit int, now time.Time) ([]*Event, error) {
	rows, err := s.db.Query(ctx,
		`WITH batch AS (
			SELECT id FROM outbox_events
			WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
			      AND (claimed_at IS NULL OR claimed_at < $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 UPDATE outbox_events AS e
		 SET claimed_at = $5
		 FROM batch
		 WHERE e.id = batch.id
		 RETURNING `+postgresReturningColumns,
		string(StatusFailed), now, now.Add(-claimWindow), limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim retryable events: %w", err)
	}
	defer rows.Close()

	return scanPgxEvents(rows)
}

// Update persists status/retry/error mutations of a single record and
// releases the record's claim; the publish attempt it covered is over.
func (s *PostgresStore) Update(ctx context.Context, ev *Event) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET status = $1, processed_at = $2, retry_count = $3, error_message = $4, next_retry_at = $5, claimed_at = NULL
		 WHERE id = $6 AND status != $7`,
		string(ev.Status), ev.ProcessedAt, ev.RetryCount, ev.ErrorMessage,
		ev.NextRetryAt, ev.ID, string(StatusProcessed))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.db.QueryRow(ctx,
			`SELECT status FROM outbox_events WHERE id = $1`, ev.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update event status check: %w", err)
		}
		return ErrImmutable
	}
	return nil
}

// DeleteProcessedOlderThan removes processed records delivered before cutoff.
func (s *PostgresStore) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM outbox_events
		 WHERE status = $1 AND processed_at IS NOT NULL AND processed_at < $2`,
		string(StatusProcessed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPending returns the number of pending records.
func (s *PostgresStore) CountPending(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, StatusPending)
}

// CountFailed returns the number of failed records.
func (s *PostgresStore) CountFailed(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, StatusFailed)
}

func (s *PostgresStore) countByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", status, err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// scanPgxEvents reads event rows from a pgx result set.
func scanPgxEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			ev     Event
			status string
		)
		err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.CorrelationID,
			&ev.CreatedAt, &ev.ProcessedAt, &status, &ev.RetryCount, &ev.ErrorMessage, &ev.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Status = Status(status)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
