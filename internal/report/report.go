// Package report produces location reports on request. A request writes the
// report row and the ReportRequested event in one transaction; the generator
// consumes that event and completes the report the same way, raising
// ReportCompleted for downstream notification.
package report

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a report through its lifecycle.
type Status string

const (
	StatusRequested Status = "requested"
	StatusCompleted Status = "completed"
)

// Report is one requested location report.
type Report struct {
	ID           uuid.UUID  `json:"id"`
	Location     string     `json:"location"`
	RequestedBy  string     `json:"requestedBy"`
	Status       Status     `json:"status"`
	FilePath     string     `json:"filePath,omitempty"`
	ContactCount int        `json:"contactCount"`
	RequestedAt  time.Time  `json:"requestedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
