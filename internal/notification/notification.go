// Package notification delivers messages to users when their reports are
// ready. Delivery is pluggable through Sender; the default implementation
// just logs, which is enough for local runs and tests.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/eventrelay/internal/observability"
)

// Notification is one message to a recipient.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}

// Sender delivers a notification to its recipient.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log instead of sending
// them anywhere.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, n Notification) error {
	observability.InfoContext(ctx, "Notification sent",
		slog.String("recipient", n.Recipient), slog.String("subject", n.Subject))
	return nil
}
