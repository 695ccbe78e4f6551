package outbox

import "errors"

var (
	// ErrDuplicateID indicates a create with an identifier that already exists.
	ErrDuplicateID = errors.New("outbox: duplicate event id")

	// ErrNotFound indicates the requested event record does not exist.
	ErrNotFound = errors.New("outbox: event not found")

	// ErrImmutable indicates an attempt to mutate a processed record.
	ErrImmutable = errors.New("outbox: processed records are immutable")
)
