// Package contact manages the contact directory. Every mutation commits its
// outbox event in the same transaction as the directory write, so the change
// feed never diverges from the directory itself.
package contact

import (
	"time"

	"github.com/google/uuid"
)

// Contact is one directory entry.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Input carries the caller-supplied contact fields.
type Input struct {
	FirstName string
	LastName  string
	Company   string
}
