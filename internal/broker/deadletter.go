package broker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DeadLetter receives messages a consumer refuses to retry. The original
// bytes and headers are forwarded unmodified so an operator can inspect or
// replay them.
type DeadLetter interface {
	Publish(ctx context.Context, originalSubject string, data []byte, header nats.Header) error
}

// NATSDeadLetter publishes poison messages under a per-consumer dead-letter
// subject on the same stream.
type NATSDeadLetter struct {
	js            jetstream.JetStream
	subjectPrefix string
	group         string
}

// NewNATSDeadLetter creates the dead-letter publisher for one consumer group.
func NewNATSDeadLetter(js jetstream.JetStream, subjectPrefix, group string) *NATSDeadLetter {
	return &NATSDeadLetter{js: js, subjectPrefix: subjectPrefix, group: group}
}

// Subject returns the dead-letter subject for this consumer group.
func (d *NATSDeadLetter) Subject() string {
	return d.subjectPrefix + "." + d.group
}

// Publish forwards a poison message to the dead-letter subject. The original
// subject travels in a header so replay tooling knows where it came from.
func (d *NATSDeadLetter) Publish(ctx context.Context, originalSubject string, data []byte, header nats.Header) error {
	msg := &nats.Msg{
		Subject: d.Subject(),
		Data:    data,
		Header:  nats.Header{},
	}
	for k, vs := range header {
		for _, v := range vs {
			msg.Header.Add(k, v)
		}
	}
	msg.Header.Set("Relay-Original-Subject", originalSubject)

	if _, err := d.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish dead letter for %s: %w", originalSubject, err)
	}
	return nil
}
