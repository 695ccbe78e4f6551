package outbox

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// scanEvents reads event rows produced by the sqliteSelectColumns projection.
func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			ev          Event
			id          string
			status      string
			createdAt   int64
			processedAt sql.NullInt64
			nextRetryAt sql.NullInt64
		)
		err := rows.Scan(&id, &ev.EventType, &ev.Payload, &ev.CorrelationID,
			&createdAt, &processedAt, &status, &ev.RetryCount, &ev.ErrorMessage, &nextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		ev.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		ev.Status = Status(status)
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		if processedAt.Valid {
			t := time.UnixMilli(processedAt.Int64).UTC()
			ev.ProcessedAt = &t
		}
		if nextRetryAt.Valid {
			t := time.UnixMilli(nextRetryAt.Int64).UTC()
			ev.NextRetryAt = &t
		}

		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
