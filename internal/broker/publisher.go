package broker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/eventrelay/internal/correlation"
	"git.home.luguber.info/inful/eventrelay/internal/events"
	"git.home.luguber.info/inful/eventrelay/internal/outbox"
)

// NATSPublisher turns outbox records into JetStream messages. It holds no
// per-call state, so the relay may invoke it concurrently across a batch.
type NATSPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
}

// NewNATSPublisher creates a publisher over an established connection.
func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) (*NATSPublisher, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &NATSPublisher{js: js, subjectPrefix: subjectPrefix}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.subjectPrefix + "." + eventType
}

// Publish serializes the record into the wire envelope and sends it. The
// correlation identifier is duplicated as a message header so broker-side
// tracing tools see it without decoding bodies.
func (p *NATSPublisher) Publish(ctx context.Context, ev *outbox.Event) PublishResult {
	wire, err := events.EncodeEnvelope(ev.EventType, ev.Payload, ev.CorrelationID)
	if err != nil {
		return Permanent(err)
	}

	msg := &nats.Msg{
		Subject: p.Subject(ev.EventType),
		Data:    wire,
		Header:  nats.Header{},
	}
	msg.Header.Set(correlation.Header, ev.CorrelationID)

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return Retryable(fmt.Errorf("publish %s: %w", msg.Subject, err))
	}
	return OK()
}
