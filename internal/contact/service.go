package contact

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/logfields"
	"git.home.luguber.info/inful/eventrelay/internal/observability"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
)

// Service exposes contact directory mutations. Each mutation writes the
// directory row and its change event in one transaction.
type Service struct {
	db     *sql.DB
	store  *Store
	outbox *outbox.SQLiteStore
	now    func() time.Time
}

// NewService wires the directory over the shared database.
func NewService(store *Store, ob *outbox.SQLiteStore) *Service {
	return &Service{db: ob.DB(), store: store, outbox: ob, now: time.Now}
}

// Create adds a contact and raises ContactCreated.
func (s *Service) Create(ctx context.Context, in Input) (*Contact, error) {
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}

	now := s.now().UTC()
	c := &Contact{
		ID:        uuid.New(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Company:   in.Company,
		CreatedAt: now,
		UpdatedAt: now,
	}

	payload, err := json.Marshal(events.ContactCreated{
		ContactID: c.ID.String(),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode contact created event: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.insertIn(ctx, tx, c); err != nil {
			return err
		}
		_, err := relay.AddEventTx(ctx, s.outbox, tx, events.TypeContactCreated, payload, correlation.From(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.InfoContext(ctx, "Contact created", logfields.EventID(c.ID.String()))
	return c, nil
}

// Update modifies a contact and raises ContactUpdated.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Contact, error) {
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.FirstName = in.FirstName
	existing.LastName = in.LastName
	existing.Company = in.Company
	existing.UpdatedAt = s.now().UTC()

	payload, err := json.Marshal(events.ContactUpdated{
		ContactID: existing.ID.String(),
		FirstName: existing.FirstName,
		LastName:  existing.LastName,
		Company:   existing.Company,
		UpdatedAt: existing.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode contact updated event: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.updateIn(ctx, tx, existing); err != nil {
			return err
		}
		_, err := relay.AddEventTx(ctx, s.outbox, tx, events.TypeContactUpdated, payload, correlation.From(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a contact and raises ContactDeleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	payload, err := json.Marshal(events.ContactDeleted{
		ContactID: id.String(),
		DeletedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode contact deleted event: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.deleteIn(ctx, tx, id); err != nil {
			return err
		}
		_, err := relay.AddEventTx(ctx, s.outbox, tx, events.TypeContactDeleted, payload, correlation.From(ctx))
		return err
	})
}

// Get retrieves one contact.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Contact, error) {
	return s.store.GetByID(ctx, id)
}

// List returns the whole directory.
func (s *Service) List(ctx context.Context) ([]*Contact, error) {
	return s.store.List(ctx)
}

// Count returns the directory size. Report generation uses it for summary
// figures.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
