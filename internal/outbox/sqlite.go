package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Execer is the subset of database/sql used for outbox inserts. It is
// satisfied by both *sql.DB and *sql.Tx so a service can write its domain
// change and its outbox record in the same transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore implements Store using SQLite.
//
// The store holds no lock of its own. database/sql is goroutine-safe and the
// single-connection pool already serializes statements; a store-level mutex
// would deadlock against callers that pin the pooled connection in a domain
// transaction and then insert through CreateIn.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	correlation_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	processed_at INTEGER,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	next_retry_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox_events(status, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_status_retry ON outbox_events(status, next_retry_at);
`

// NewSQLiteStore creates a new SQLite-based outbox store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer, and a :memory: database exists per
	// connection; one pooled connection keeps both semantics sane.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing connection so the outbox table lives
// in the same database as the owning service's domain tables. The caller
// keeps ownership of db; Close on the returned store closes it.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// DB exposes the underlying connection for services that open their domain
// transaction on the same database.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Create persists a new pending record.
func (s *SQLiteStore) Create(ctx context.Context, ev *Event) error {
	return s.CreateIn(ctx, s.db, ev)
}

// CreateIn persists a new pending record through the given Execer, typically
// a *sql.Tx holding the caller's domain write. This is the outbox guarantee:
// record and domain fact commit or roll back together.
func (s *SQLiteStore) CreateIn(ctx context.Context, ex Execer, ev *Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = []byte{} // NOT NULL column
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO outbox_events
		 (id, event_type, payload, correlation_id, created_at, processed_at, status, retry_count, error_message, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.EventType, payload, ev.CorrelationID,
		ev.CreatedAt.UnixMilli(), nullMilli(ev.ProcessedAt), string(ev.Status),
		ev.RetryCount, ev.ErrorMessage, nullMilli(ev.NextRetryAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert event %s: %w", ev.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const sqliteSelectColumns = `id, event_type, payload, correlation_id, created_at, processed_at, status, retry_count, error_message, next_retry_at`

// GetByID retrieves a single record.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM outbox_events WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events[0], nil
}

// GetPending returns up to limit pending records, oldest first.
func (s *SQLiteStore) GetPending(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM outbox_events
		 WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRetryableFailed returns failed records whose retry time has passed.
func (s *SQLiteStore) GetRetryableFailed(ctx context.Context, limit int, now time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM outbox_events
		 WHERE status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY created_at ASC LIMIT ?`,
		string(StatusFailed), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Update persists status/retry/error mutations of a single record. Processed
// records are immutable; updating one returns ErrImmutable.
func (s *SQLiteStore) Update(ctx context.Context, ev *Event) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = ?, processed_at = ?, retry_count = ?, error_message = ?, next_retry_at = ?
		 WHERE id = ? AND status != ?`,
		string(ev.Status), nullMilli(ev.ProcessedAt), ev.RetryCount, ev.ErrorMessage,
		nullMilli(ev.NextRetryAt), ev.ID.String(), string(StatusProcessed))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event rows: %w", err)
	}
	if n == 0 {
		// Distinguish a missing record from an immutable one.
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM outbox_events WHERE id = ?`, ev.ID.String()).Scan(&status)
		if err == sql.ErrNoRows {
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
func (s *SQLiteStore) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_events
		 WHERE status = ? AND processed_at IS NOT NULL AND processed_at < ?`,
		string(StatusProcessed), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete processed events: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of pending records.
func (s *SQLiteStore) CountPending(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, StatusPending)
}

// CountFailed returns the number of failed records.
func (s *SQLiteStore) CountFailed(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, StatusFailed)
}

func (s *SQLiteStore) countByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", status, err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullMilli converts an optional timestamp to a nullable millisecond column.
// Millisecond precision keeps sub-second backoff schedules distinguishable.
func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
