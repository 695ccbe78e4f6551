// Package consumer implements the downstream side of the relay: durable
// pull consumers that dispatch wire envelopes to typed handlers and commit
// their position only after successful local processing.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrMalformed classifies a message that can never be processed, no matter
// how often it is redelivered. The worker dead-letters such messages instead
// of retrying them.
var ErrMalformed = errors.New("consumer: malformed message")

// HandlerFunc processes one decoded payload. A returned error wrapping
// ErrMalformed dead-letters the message; any other error leaves the message
// uncommitted for redelivery, so handlers must tolerate duplicates.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Registry maps event types to handlers. Populated once at startup; lookups
// replace stringly-typed switching on the event type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// Handle registers a raw handler for an event type.
func (r *Registry) Handle(eventType string, h HandlerFunc) error {
	if eventType == "" {
		return fmt.Errorf("register handler: event type is required")
	}
	if h == nil {
		return fmt.Errorf("register handler for %s: handler is nil", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("register handler for %s: already registered", eventType)
	}
	r.handlers[eventType] = h
	return nil
}

// Lookup returns the handler for an event type.
func (r *Registry) Lookup(eventType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Types lists the registered event types, sorted for stable logging.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Register binds a typed decode+handle function. A payload that does not
// decode into T is malformed by definition and never retried.
func Register[T any](r *Registry, eventType string, fn func(ctx context.Context, ev T) error) error {
	return r.Handle(eventType, func(ctx context.Context, payload json.RawMessage) error {
		var ev T
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", eventType, err, ErrMalformed)
		}
		return fn(ctx, ev)
	})
}
