package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/eventrelay/internal/logfields"
)

// Connect dials the broker with reconnect behavior suited to a long-running
// relay: unlimited reconnects, so a broker restart is a retryable condition
// rather than a process failure.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	return conn, nil
}

// EnsureStream creates or updates the stream holding relayed events and the
// dead-letter subjects. Idempotent; every service calls it at startup.
func EnsureStream(ctx context.Context, conn *nats.Conn, stream string, subjects []string) (jetstream.JetStream, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	slog.Info("Ensured event stream",
		logfields.Stream(stream),
		slog.Any("subjects", subjects))
	return js, nil
}
