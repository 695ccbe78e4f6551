// Package broker wraps the NATS JetStream client: publishing outbox records
// as wire envelopes, bootstrapping the stream, and the dead-letter path.
package broker

// Outcome classifies a publish attempt so retry policy can be driven by data
// instead of by catching errors.
type Outcome int

const (
	// OutcomeOK means the broker acknowledged the message.
	OutcomeOK Outcome = iota
	// OutcomeRetryable means the attempt failed in a way a later retry can
	// fix (broker unreachable, timeout).
	OutcomeRetryable
	// OutcomePermanent means retrying cannot help (the record cannot be
	// encoded); the relay fails the record without spending retry budget.
	OutcomePermanent
)

// PublishResult is the outcome of one publish attempt.
type PublishResult struct {
	Outcome Outcome
	Err     error
}

// OK reports a successful attempt.
func OK() PublishResult { return PublishResult{Outcome: OutcomeOK} }

// Retryable reports a transient failure.
func Retryable(err error) PublishResult {
	return PublishResult{Outcome: OutcomeRetryable, Err: err}
}

// Permanent reports a failure no retry can fix.
func Permanent(err error) PublishResult {
	return PublishResult{Outcome: OutcomePermanent, Err: err}
}
