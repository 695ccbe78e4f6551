package contact

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
)

// AuditEntry is one recorded directory change, written by the audit consumer
// as events arrive off the stream.
type AuditEntry struct {
	ID            uuid.UUID `json:"id"`
	ContactID     string    `json:"contactId"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail"`
	CorrelationID string    `json:"correlationId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// AuditStore persists the change log.
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS contact_audit (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL,
	occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contact_audit_contact ON contact_audit(contact_id, occurred_at);
`

// NewAuditStore initializes the audit table on the given connection.
func NewAuditStore(db *sql.DB) (*AuditStore, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("initialize contact audit schema: %w", err)
	}
	return &AuditStore{db: db, now: time.Now}, nil
}

func (s *AuditStore) record(ctx context.Context, contactID, action, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_audit (id, contact_id, action, detail, correlation_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), contactID, action, detail,
		correlation.From(ctx), s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ByContact lists the change history of one contact, oldest first.
func (s *AuditStore) ByContact(ctx context.Context, contactID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, action, detail, correlation_id, occurred_at
		 FROM contact_audit WHERE contact_id = ? ORDER BY occurred_at ASC, rowid ASC`, contactID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var (
			e     AuditEntry
			rawID string
			ms    int64
		)
		if err := rows.Scan(&rawID, &e.ContactID, &e.Action, &e.Detail, &e.CorrelationID, &ms); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse audit id %q: %w", rawID, err)
		}
		e.ID = id
		e.OccurredAt = time.UnixMilli(ms).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RegisterAuditHandlers subscribes the audit log to the directory change
// events.
func RegisterAuditHandlers(reg *consumer.Registry, store *AuditStore) error {
	if err := consumer.Register(reg, events.TypeContactCreated, func(ctx context.Context, p events.ContactCreated) error {
		detail := fmt.Sprintf("%s %s (%s)", p.FirstName, p.LastName, p.Company)
		return store.record(ctx, p.ContactID, "created", detail)
	}); err != nil {
		return err
	}
	if err := consumer.Register(reg, events.TypeContactUpdated, func(ctx context.Context, p events.ContactUpdated) error {
		detail := fmt.Sprintf("%s %s (%s)", p.FirstName, p.LastName, p.Company)
		return store.record(ctx, p.ContactID, "updated", detail)
	}); err != nil {
		return err
	}
	return consumer.Register(reg, events.TypeContactDeleted, func(ctx context.Context, p events.ContactDeleted) error {
		return store.record(ctx, p.ContactID, "deleted", "")
	})
}
