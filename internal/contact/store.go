package contact

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

// Store persists contacts in the shared SQLite database. Writes go through
// an outbox.Execer so they can ride the caller's transaction.
type Store struct {
	db *sql.DB
}

const contactSchema = `
CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_last_name ON contacts(last_name, first_name);
`

// NewStore initializes the contacts table on the given connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(contactSchema); err != nil {
		return nil, fmt.Errorf("initialize contacts schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) insertIn(ctx context.Context, ex outbox.Execer, c *Contact) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO contacts (id, first_name, last_name, company, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.FirstName, c.LastName, c.Company,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *Store) updateIn(ctx context.Context, ex outbox.Execer, c *Contact) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE contacts SET first_name = ?, last_name = ?, company = ?, updated_at = ?
		 WHERE id = ?`,
		c.FirstName, c.LastName, c.Company, c.UpdatedAt.UnixMilli(), c.ID.String())
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) deleteIn(ctx context.Context, ex outbox.Execer, id uuid.UUID) error {
	res, err := ex.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contact rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves one contact.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, company, created_at, updated_at
		 FROM contacts WHERE id = ?`, id.String())
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}
	return c, nil
}

// List returns all contacts ordered by name.
func (s *Store) List(ctx context.Context) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, company, created_at, updated_at
		 FROM contacts ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the directory size.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var (
		c                  Contact
		rawID              string
		createdMs, updated int64
	)
	if err := row.Scan(&rawID, &c.FirstName, &c.LastName, &c.Company, &createdMs, &updated); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse contact id %q: %w", rawID, err)
	}
	c.ID = id
	c.CreatedAt = time.UnixMilli(createdMs).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return &c, nil
}
