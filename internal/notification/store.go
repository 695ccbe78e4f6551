package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store keeps a record of every delivered notification.
type Store struct {
	db *sql.DB
}

const notificationSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	recipient TEXT NOT NULL,
	subject TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	sent_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient, sent_at);
`

// NewStore initializes the notifications table on the given connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(notificationSchema); err != nil {
		return nil, fmt.Errorf("initialize notifications schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) insert(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient, subject, body, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.ID.String(), n.Recipient, n.Subject, n.Body, n.SentAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ByRecipient lists the notifications delivered to one recipient, oldest
// first.
func (s *Store) ByRecipient(ctx context.Context, recipient string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, subject, body, sent_at
		 FROM notifications WHERE recipient = ? ORDER BY sent_at ASC, rowid ASC`, recipient)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n     Notification
			rawID string
			ms    int64
		)
		if err := rows.Scan(&rawID, &n.Recipient, &n.Subject, &n.Body, &ms); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse notification id %q: %w", rawID, err)
		}
		n.ID = id
		n.SentAt = time.UnixMilli(ms).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
