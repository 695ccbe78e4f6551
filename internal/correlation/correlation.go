// Package correlation carries an opaque correlation identifier across the
// request → outbox → broker → consumer chain. The identifier is treated as an
// opaque string end to end; it is attached to wire messages as a header so
// broker-level tooling can trace a fact through every service that touches it.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Header is the message header used to duplicate the correlation identifier
// on the wire for broker-level tracing tools.
const Header = "Relay-Correlation-Id"

type ctxKey struct{}

// With returns a context carrying the given correlation identifier.
func With(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// From extracts the correlation identifier from the context, or "" if absent.
func From(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns a context that is guaranteed to carry a correlation
// identifier, generating a new one when the context has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := From(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return With(ctx, id), id
}
