package contact

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/eventrelay/internal/consumer"
	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

func newAuditFixture(t *testing.T) (*AuditStore, *consumer.Registry) {
	t.Helper()
	ob, err := outbox.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })

	store, err := NewAuditStore(ob.DB())
	require.NoError(t, err)

	reg := consumer.NewRegistry()
	require.NoError(t, RegisterAuditHandlers(reg, store))
	return store, reg
}

func TestAuditRecordsDirectoryChanges(t *testing.T) {
	store, reg := newAuditFixture(t)
	ctx := correlation.With(context.Background(), "corr-audit")

	created, err := json.Marshal(events.ContactCreated{
		ContactID: "c-1", FirstName: "Kari", LastName: "Nordmann", Company: "Inful",
	})
	require.NoError(t, err)
	updated, err := json.Marshal(events.ContactUpdated{
		ContactID: "c-1", FirstName: "Kari", LastName: "Hansen",
	})
	require.NoError(t, err)
	deleted, err := json.Marshal(events.ContactDeleted{ContactID: "c-1", DeletedAt: time.Now()})
	require.NoError(t, err)

	for _, tc := range []struct {
		eventType string
		payload   []byte
	}{
		{events.TypeContactCreated, created},
		{events.TypeContactUpdated, updated},
		{events.TypeContactDeleted, deleted},
	} {
		handler, ok := reg.Lookup(tc.eventType)
		require.True(t, ok)
		require.NoError(t, handler(ctx, tc.payload))
	}

	entries, err := store.ByContact(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "created", entries[0].Action)
	require.Equal(t, "updated", entries[1].Action)
	require.Equal(t, "deleted", entries[2].Action)
	require.Contains(t, entries[0].Detail, "Nordmann")
	for _, e := range entries {
		require.Equal(t, "corr-audit", e.CorrelationID)
	}
}

func TestAuditHandlersRejectMalformedPayload(t *testing.T) {
	_, reg := newAuditFixture(t)

	handler, ok := reg.Lookup(events.TypeContactCreated)
	require.True(t, ok)

	err := handler(context.Background(), json.RawMessage(`{"contactId": 7}`))
	require.ErrorIs(t, err, consumer.ErrMalformed)
}
