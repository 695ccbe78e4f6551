package contact

import "errors"

// ErrNotFound indicates the contact does not exist.
var ErrNotFound = errors.New("contact not found")

// ErrInvalidInput indicates a mutation with missing required fields.
var ErrInvalidInput = errors.New("invalid contact input")
