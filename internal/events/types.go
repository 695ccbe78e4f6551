package events

import "time"

// Event type discriminators. These are the values stored on outbox records
// and routed on by consumer registries; renaming one is a wire-format change.
const (
	TypeReportRequested = "ReportRequested"
	TypeReportCompleted = "ReportCompleted"
	TypeContactCreated  = "ContactCreated"
	TypeContactUpdated  = "ContactUpdated"
	TypeContactDeleted  = "ContactDeleted"
)

// ReportRequested is raised by the report service when a caller asks for a
// location report. The report row and this event commit in one transaction.
type ReportRequested struct {
	ReportID    string    `json:"reportId"`
	Location    string    `json:"location"`
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

// ReportCompleted is raised when report generation finishes. The notification
// service consumes it to tell the requester their report is ready.
type ReportCompleted struct {
	ReportID     string    `json:"reportId"`
	Location     string    `json:"location"`
	FilePath     string    `json:"filePath"`
	ContactCount int       `json:"contactCount"`
	RequestedBy  string    `json:"requestedBy"`
	CompletedAt  time.Time `json:"completedAt"`
}

// ContactCreated is raised by the contact service for any subscriber that
// wants to follow directory changes.
type ContactCreated struct {
	ContactID string    `json:"contactId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContactUpdated is raised when contact details change.
type ContactUpdated struct {
	ContactID string    `json:"contactId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Company   string    `json:"company"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ContactDeleted is raised when a contact is removed from the directory.
type ContactDeleted struct {
	ContactID string    `json:"contactId"`
	DeletedAt time.Time `json:"deletedAt"`
}
