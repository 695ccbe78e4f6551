package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Dedupe suppresses duplicate side effects under at-least-once delivery.
// Keyed by (eventType, correlationId); handlers like "send notification" are
// not naturally idempotent, so the worker consults this before dispatching.
type Dedupe interface {
	Seen(ctx context.Context, eventType, correlationID string) (bool, error)
	Mark(ctx context.Context, eventType, correlationID string) error
}

// KVDedupe stores processed keys in a JetStream key-value bucket shared by
// all instances of a consumer group. Entries expire with the bucket TTL;
// redelivery windows are far shorter than that.
type KVDedupe struct {
	kv jetstream.KeyValue
}

// NewKVDedupe creates or opens the dedupe bucket for a consumer group.
func NewKVDedupe(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVDedupe, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return &KVDedupe{kv: kv}, nil
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Processed-message keys for duplicate suppression",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create dedupe bucket %s: %w", bucket, err)
	}
	return &KVDedupe{kv: kv}, nil
}

func dedupeKey(eventType, correlationID string) string {
	return eventType + "." + correlationID
}

// Seen reports whether this (eventType, correlationId) was already processed.
func (d *KVDedupe) Seen(ctx context.Context, eventType, correlationID string) (bool, error) {
	_, err := d.kv.Get(ctx, dedupeKey(eventType, correlationID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("dedupe lookup: %w", err)
	}
	return true, nil
}

// Mark records successful processing of this (eventType, correlationId).
func (d *KVDedupe) Mark(ctx context.Context, eventType, correlationID string) error {
	_, err := d.kv.Put(ctx, dedupeKey(eventType, correlationID),
		[]byte(time.Now().UTC().Format(time.RFC3339)))
	if err != nil {
		return fmt.Errorf("dedupe mark: %w", err)
	}
	return nil
}
