package observability

import (
	"context"
	"log/slog"
	"testing"

	"git.home.luguber.info/inful/eventrelay/internal/correlation"
)

func TestWithEventIDAndType(t *testing.T) {
	ctx := WithEventID(context.Background(), "ev-1")
	ctx = WithEventType(ctx, "ReportRequested")

	lc := GetContext(ctx)
	if lc.EventID != "ev-1" {
		t.Errorf("expected event id ev-1, got %q", lc.EventID)
	}
	if lc.EventType != "ReportRequested" {
		t.Errorf("expected event type ReportRequested, got %q", lc.EventType)
	}
}

func TestWithConsumerGroupAndSubject(t *testing.T) {
	ctx := WithConsumerGroup(context.Background(), "notification-service")
	ctx = WithSubject(ctx, "relay.events.ReportCompleted")

	lc := GetContext(ctx)
	if lc.ConsumerGroup != "notification-service" {
		t.Errorf("unexpected consumer group %q", lc.ConsumerGroup)
	}
	if lc.Subject != "relay.events.ReportCompleted" {
		t.Errorf("unexpected subject %q", lc.Subject)
	}
}

func TestContextValuesDoNotLeakBetweenBranches(t *testing.T) {
	base := WithEventType(context.Background(), "ContactCreated")
	branch := WithEventID(base, "ev-2")

	if GetContext(base).EventID != "" {
		t.Error("base context should not carry the branch event id")
	}
	if GetContext(branch).EventType != "ContactCreated" {
		t.Error("branch context should inherit the event type")
	}
}

func TestGetLogAttrsIncludesCorrelation(t *testing.T) {
	ctx := correlation.With(context.Background(), "corr-9")
	ctx = WithEventType(ctx, "ReportCompleted")

	attrs := getLogAttrs(ctx)
	found := map[string]string{}
	for _, a := range attrs {
		found[a.Key] = a.Value.String()
	}
	if found["correlation_id"] != "corr-9" {
		t.Errorf("expected correlation_id attr, got %v", found)
	}
	if found["event_type"] != "ReportCompleted" {
		t.Errorf("expected event_type attr, got %v", found)
	}
}

func TestGetLogAttrsEmptyContext(t *testing.T) {
	attrs := getLogAttrs(context.Background())
	if len(attrs) != 0 {
		t.Errorf("expected no attrs for empty context, got %v", attrs)
	}
}

func TestLoggingHelpersDoNotPanic(t *testing.T) {
	ctx := WithConsumerGroup(context.Background(), "report-service")
	InfoContext(ctx, "message", slog.String("k", "v"))
	WarnContext(ctx, "message")
	ErrorContext(ctx, "message")
	DebugContext(ctx, "message")
}
