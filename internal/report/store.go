package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

// ErrNotFound indicates the report does not exist.
var ErrNotFound = errors.New("report not found")

// Store persists reports in the shared SQLite database.
type Store struct {
	db *sql.DB
}

const reportSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	requested_by TEXT NOT NULL,
	status TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	contact_count INTEGER NOT NULL DEFAULT 0,
	requested_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, requested_at);
`

// NewStore initializes the reports table on the given connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(reportSchema); err != nil {
		return nil, fmt.Errorf("initialize reports schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) insertIn(ctx context.Context, ex outbox.Execer, r *Report) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO reports (id, location, requested_by, status, file_path, contact_count, requested_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Location, r.RequestedBy, string(r.Status),
		r.FilePath, r.ContactCount, r.RequestedAt.UnixMilli(), nullMilli(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) completeIn(ctx context.Context, ex outbox.Execer, r *Report) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE reports SET status = ?, file_path = ?, contact_count = ?, completed_at = ?
		 WHERE id = ?`,
		string(r.Status), r.FilePath, r.ContactCount, nullMilli(r.CompletedAt), r.ID.String())
	if err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete report rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves one report.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, location, requested_by, status, file_path, contact_count, requested_at, completed_at
		 FROM reports WHERE id = ?`, id.String())

	var (
		r           Report
		rawID       string
		requestedMs int64
		completedMs sql.NullInt64
		status      string
	)
	err := row.Scan(&rawID, &r.Location, &r.RequestedBy, &status, &r.FilePath,
		&r.ContactCount, &requestedMs, &completedMs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}

	id, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse report id %q: %w", rawID, err)
	}
	r.ID = id
	r.Status = Status(status)
	r.RequestedAt = time.UnixMilli(requestedMs).UTC()
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64).UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
