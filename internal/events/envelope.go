// Package events defines the event types exchanged between the contact,
// report and notification services, plus the wire envelope they travel in.
package events

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire format for every relayed message. The correlation
// identifier is carried both here and as a message header so broker-side
// tooling can trace messages without decoding bodies.
type Envelope struct {
	EventType     string          `json:"eventType"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlationId"`
}

// EncodeEnvelope serializes an envelope for publishing.
func EncodeEnvelope(eventType string, data []byte, correlationID string) ([]byte, error) {
	if eventType == "" {
		return nil, fmt.Errorf("encode envelope: event type is required")
	}
	// A zero-length RawMessage is not valid JSON and would fail to marshal;
	// an absent payload goes on the wire as data: null.
	if len(data) == 0 {
		data = nil
	}
	env := Envelope{
		EventType:     eventType,
		Data:          json.RawMessage(data),
		CorrelationID: correlationID,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

// DecodeEnvelope parses a wire message back into an envelope. A message that
// does not parse, or that carries no event type, is malformed and must not be
// redelivered.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("decode envelope: missing event type")
	}
	return &env, nil
}
