package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/eventrelay/internal/events"
)

func TestRegistryTypedDispatch(t *testing.T) {
	reg := NewRegistry()
	var got events.ReportRequested
	err := Register(reg, events.TypeReportRequested, func(_ context.Context, p events.ReportRequested) error {
		got = p
		return nil
	})
	require.NoError(t, err)

	handler, ok := reg.Lookup(events.TypeReportRequested)
	require.True(t, ok)

	payload, err := json.Marshal(events.ReportRequested{ReportID: "r-1", Location: "Bergen"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), payload))
	require.Equal(t, "r-1", got.ReportID)
	require.Equal(t, "Bergen", got.Location)
}

func TestRegistryMalformedPayload(t *testing.T) {
	reg := NewRegistry()
	err := Register(reg, events.TypeReportRequested, func(_ context.Context, _ events.ReportRequested) error {
		t.Fatal("handler must not run on undecodable payload")
		return nil
	})
	require.NoError(t, err)

	handler, _ := reg.Lookup(events.TypeReportRequested)
	err = handler(context.Background(), json.RawMessage(`{"reportId": 42`))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRegistryHandlerErrorIsNotMalformed(t *testing.T) {
	reg := NewRegistry()
	transient := errors.New("downstream unavailable")
	err := Register(reg, events.TypeReportCompleted, func(_ context.Context, _ events.ReportCompleted) error {
		return transient
	})
	require.NoError(t, err)

	handler, _ := reg.Lookup(events.TypeReportCompleted)
	err = handler(context.Background(), json.RawMessage(`{}`))
	require.ErrorIs(t, err, transient)
	require.NotErrorIs(t, err, ErrMalformed)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	noop := func(_ context.Context, _ events.ContactCreated) error { return nil }
	require.NoError(t, Register(reg, events.TypeContactCreated, noop))
	require.Error(t, Register(reg, events.TypeContactCreated, noop))
}

func TestRegistryUnknownType(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Lookup("NeverRegistered")
	require.False(t, ok)
}

func TestRegistryTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Handle(events.TypeContactDeleted, func(context.Context, json.RawMessage) error { return nil }))
	require.NoError(t, reg.Handle(events.TypeContactCreated, func(context.Context, json.RawMessage) error { return nil }))
	require.Equal(t, []string{events.TypeContactCreated, events.TypeContactDeleted}, reg.Types())
}
