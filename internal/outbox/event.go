// Package outbox implements the durable side of the transactional outbox:
// event records written in the same transaction as the domain change they
// describe, queried and mutated by the relay until delivered.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of an event record.
type Status string

const (
	// StatusPending marks a record awaiting its first publish attempt.
	StatusPending Status = "pending"
	// StatusProcessed marks a record that was delivered to the broker.
	// Processed records are immutable.
	StatusProcessed Status = "processed"
	// StatusFailed marks a record whose last publish attempt failed. A failed
	// record with a NextRetryAt in the past is retried; one with no
	// NextRetryAt stays put until an operator intervenes.
	StatusFailed Status = "failed"
)

// Event is the unit of reliable delivery. It never exists without the
// committed domain fact it describes, and the domain fact never commits
// without it.
type Event struct {
	ID            uuid.UUID
	EventType     string
	Payload       []byte
	CorrelationID string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	Status        Status
	RetryCount    int
	ErrorMessage  string
	NextRetryAt   *time.Time
}

// New creates a pending event record with a fresh identifier.
func New(eventType string, payload []byte, correlationID string) *Event {
	return &Event{
		ID:            uuid.New(),
		EventType:     eventType,
		Payload:       payload,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}
}

// MarkProcessed transitions the record to its terminal success state.
func (e *Event) MarkProcessed(now time.Time) {
	e.Status = StatusProcessed
	e.ProcessedAt = &now
	e.ErrorMessage = ""
	e.NextRetryAt = nil
}

// MarkFailed records a failed publish attempt. A nil nextRetry removes the
// record from automatic retrying; it then only surfaces through statistics
// and operator requeue.
func (e *Event) MarkFailed(errMsg string, nextRetry *time.Time) {
	e.Status = StatusFailed
	e.ErrorMessage = errMsg
	e.NextRetryAt = nextRetry
}

// Requeue resets a failed record to pending. Operator action only: this is
// the single place the retry counter may go backwards.
func (e *Event) Requeue() {
	e.Status = StatusPending
	e.RetryCount = 0
	e.ErrorMessage = ""
	e.NextRetryAt = nil
}
