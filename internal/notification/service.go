package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/events"
)

// Service turns ReportCompleted events into notifications.
type Service struct {
	store  *Store
	sender Sender
	now    func() time.Time
}

// NewService wires the notifier. A nil sender falls back to LogSender.
func NewService(store *Store, sender Sender) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{store: store, sender: sender, now: time.Now}
}

// handleReportCompleted composes, sends and records the notification. The
// delivery record is written only after the send succeeds; a failed send
// leaves the event uncommitted for redelivery.
func (s *Service) handleReportCompleted(ctx context.Context, p events.ReportCompleted) error {
	if p.RequestedBy == "" {
		return fmt.Errorf("report %s has no requester: %w", p.ReportID, consumer.ErrMalformed)
	}

	n := Notification{
		ID:        uuid.New(),
		Recipient: p.RequestedBy,
		Subject:   fmt.Sprintf("Your %s report is ready", p.Location),
		Body: fmt.Sprintf("The report for %s is available at %s. It covers %d contacts.",
			p.Location, p.FilePath, p.ContactCount),
		SentAt: s.now().UTC(),
	}

	if err := s.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification for report %s: %w", p.ReportID, err)
	}
	return s.store.insert(ctx, n)
}

// RegisterHandlers subscribes the notifier to ReportCompleted.
func (s *Service) RegisterHandlers(reg *consumer.Registry) error {
	return consumer.Register(reg, events.TypeReportCompleted, s.handleReportCompleted)
}
