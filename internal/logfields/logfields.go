package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEventID       = "event_id"
	KeyEventType     = "event_type"
	KeyCorrelationID = "correlation_id"
	KeyStatus        = "status"
	KeyRetryCount    = "retry_count"
	KeyConsumerGroup = "consumer_group"
	KeySubject       = "subject"
	KeyStream        = "stream"
	KeyCount         = "count"
	KeyDurationMS    = "duration_ms"
	KeyError         = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func EventID(id string) slog.Attr       { return slog.String(KeyEventID, id) }
func EventType(t string) slog.Attr      { return slog.String(KeyEventType, t) }
func CorrelationID(id string) slog.Attr { return slog.String(KeyCorrelationID, id) }
func Status(s string) slog.Attr         { return slog.String(KeyStatus, s) }
func RetryCount(n int) slog.Attr        { return slog.Int(KeyRetryCount, n) }
func ConsumerGroup(g string) slog.Attr  { return slog.String(KeyConsumerGroup, g) }
func Subject(s string) slog.Attr        { return slog.String(KeySubject, s) }
func Stream(s string) slog.Attr         { return slog.String(KeyStream, s) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
