package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

type fixedCounter int

func (c fixedCounter) Count(context.Context) (int, error) { return int(c), nil }

func newTestService(t *testing.T, contacts ContactCounter) (*Service, *outbox.SQLiteStore) {
	t.Helper()
	ob, err := outbox.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })

	store, err := NewStore(ob.DB())
	require.NoError(t, err)
	return NewService(store, ob, contacts), ob
}

func TestRequestWritesReportAndEventTogether(t *testing.T) {
	svc, ob := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Request(ctx, "Bergen", "kari@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRequested, r.Status)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "Bergen", got.Location)
	require.Nil(t, got.CompletedAt)

	pending, err := ob.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, events.TypeReportRequested, pending[0].EventType)
	require.NotEmpty(t, pending[0].CorrelationID)

	var payload events.ReportRequested
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, r.ID.String(), payload.ReportID)
}

func TestRequestRequiresLocation(t *testing.T) {
	svc, ob := newTestService(t, nil)
	_, err := svc.Request(context.Background(), "", "kari@example.com")
	require.Error(t, err)

	pending, err := ob.GetPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGenerateCompletesReportAndRaisesEvent(t *testing.T) {
	svc, ob := newTestService(t, fixedCounter(42))
	ctx := context.Background()

	r, err := svc.Request(ctx, "Oslo", "ola@example.com")
	require.NoError(t, err)

	reg := consumer.NewRegistry()
	require.NoError(t, svc.RegisterHandlers(reg))
	handler, ok := reg.Lookup(events.TypeReportRequested)
	require.True(t, ok)

	payload, err := json.Marshal(events.ReportRequested{ReportID: r.ID.String(), Location: "Oslo"})
	require.NoError(t, err)
	require.NoError(t, handler(ctx, payload))

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 42, got.ContactCount)
	require.Equal(t, "reports/"+r.ID.String()+".csv", got.FilePath)
	require.NotNil(t, got.CompletedAt)

	pending, err := ob.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	var completed events.ReportCompleted
	for _, ev := range pending {
		if ev.EventType == events.TypeReportCompleted {
			require.NoError(t, json.Unmarshal(ev.Payload, &completed))
		}
	}
	require.Equal(t, r.ID.String(), completed.ReportID)
	require.Equal(t, 42, completed.ContactCount)
}

func TestGenerateIsIdempotent(t *testing.T) {
	svc, ob := newTestService(t, fixedCounter(1))
	ctx := context.Background()

	r, err := svc.Request(ctx, "Oslo", "ola@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.generate(ctx, events.ReportRequested{ReportID: r.ID.String()}))
	// Redelivery of the same request must not raise a second completion.
	require.NoError(t, svc.generate(ctx, events.ReportRequested{ReportID: r.ID.String()}))

	pending, err := ob.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestGenerateUnknownReportIsMalformed(t *testing.T) {
	svc, _ := newTestService(t, nil)

	err := svc.generate(context.Background(), events.ReportRequested{ReportID: uuid.NewString()})
	require.ErrorIs(t, err, consumer.ErrMalformed)

	err = svc.generate(context.Background(), events.ReportRequested{ReportID: "not-a-uuid"})
	require.ErrorIs(t, err, consumer.ErrMalformed)
}
