package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/logfields"
	"git.home.luguber.info/inful/eventrelay/internal/observability"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
	"git.home.luguber.info/inful/eventrelay/internal/relay"
)

// ContactCounter yields the directory size for report summaries.
type ContactCounter interface {
	Count(ctx context.Context) (int, error)
}

// Service requests and generates reports.
type Service struct {
	db       *sql.DB
	store    *Store
	outbox   *outbox.SQLiteStore
	contacts ContactCounter
	now      func() time.Time
}

// NewService wires the report pipeline over the shared database. contacts
// may be nil; reports then carry a zero contact count.
func NewService(store *Store, ob *outbox.SQLiteStore, contacts ContactCounter) *Service {
	return &Service{db: ob.DB(), store: store, outbox: ob, contacts: contacts, now: time.Now}
}

// Request records a new report request and raises ReportRequested. The
// request's correlation id follows the report through generation and
// notification.
func (s *Service) Request(ctx context.Context, location, requestedBy string) (*Report, error) {
	if location == "" {
		return nil, fmt.Errorf("report request: location is required")
	}

	ctx, _ = correlation.Ensure(ctx)
	now := s.now().UTC()
	r := &Report{
		ID:          uuid.New(),
		Location:    location,
		RequestedBy: requestedBy,
		Status:      StatusRequested,
		RequestedAt: now,
	}

	payload, err := json.Marshal(events.ReportRequested{
		ReportID:    r.ID.String(),
		Location:    r.Location,
		RequestedBy: r.RequestedBy,
		RequestedAt: r.RequestedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode report requested event: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.insertIn(ctx, tx, r); err != nil {
			return err
		}
		_, err := relay.AddEventTx(ctx, s.outbox, tx, events.TypeReportRequested, payload, correlation.From(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.InfoContext(ctx, "Report requested", logfields.EventID(r.ID.String()))
	return r, nil
}

// generate completes a requested report. Completing an already completed
// report is a no-op so redeliveries of ReportRequested stay harmless.
func (s *Service) generate(ctx context.Context, p events.ReportRequested) error {
	id, err := uuid.Parse(p.ReportID)
	if err != nil {
		return fmt.Errorf("parse report id %q: %v: %w", p.ReportID, err, consumer.ErrMalformed)
	}

	existing, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// A request for a report that never got a row can never succeed.
		return fmt.Errorf("report %s does not exist: %w", p.ReportID, consumer.ErrMalformed)
	}
	if err != nil {
		return fmt.Errorf("load report %s: %w", p.ReportID, err)
	}
	if existing.Status == StatusCompleted {
		observability.InfoContext(ctx, "Report already completed, skipping",
			logfields.EventID(p.ReportID))
		return nil
	}

	count := 0
	if s.contacts != nil {
		count, err = s.contacts.Count(ctx)
		if err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
	}

	now := s.now().UTC()
	existing.Status = StatusCompleted
	existing.FilePath = fmt.Sprintf("reports/%s.csv", existing.ID)
	existing.ContactCount = count
	existing.CompletedAt = &now

	payload, err := json.Marshal(events.ReportCompleted{
		ReportID:     existing.ID.String(),
		Location:     existing.Location,
		FilePath:     existing.FilePath,
		ContactCount: existing.ContactCount,
		RequestedBy:  existing.RequestedBy,
		CompletedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("encode report completed event: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.completeIn(ctx, tx, existing); err != nil {
			return err
		}
		_, err := relay.AddEventTx(ctx, s.outbox, tx, events.TypeReportCompleted, payload, correlation.From(ctx))
		return err
	})
	if err != nil {
		return err
	}

	observability.InfoContext(ctx, "Report completed",
		logfields.EventID(existing.ID.String()), logfields.Count(count))
	return nil
}

// Get retrieves one report.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.store.GetByID(ctx, id)
}

// RegisterHandlers subscribes the generator to ReportRequested.
func (s *Service) RegisterHandlers(reg *consumer.Registry) error {
	return consumer.Register(reg, events.TypeReportRequested, s.generate)
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
