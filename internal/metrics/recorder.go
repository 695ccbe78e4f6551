// Package metrics provides observability hooks for the relay and consumers.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics are optional and carry no overhead when disabled.
// The Prometheus implementation is activated by the daemon when an HTTP
// listen address is configured.
package metrics

import "time"

// ConsumeResult enumerates consumer outcomes for counters.
type ConsumeResult string

const (
	ConsumeAcked      ConsumeResult = "acked"
	ConsumeRetried    ConsumeResult = "retried"
	ConsumeDeadLetter ConsumeResult = "dead_letter"
	ConsumeDeduped    ConsumeResult = "deduped"
)

// Recorder defines observability hooks for relay and consumer metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	IncPublished(eventType string)
	IncPublishFailed(eventType string)
	IncConsumed(group string, result ConsumeResult)
	SetBacklog(pending, failed int64)
	ObserveRelayCycle(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncPublished(string)                {}
func (NoopRecorder) IncPublishFailed(string)            {}
func (NoopRecorder) IncConsumed(string, ConsumeResult)  {}
func (NoopRecorder) SetBacklog(int64, int64)            {}
func (NoopRecorder) ObserveRelayCycle(time.Duration)    {}
