package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Using NATS is simpler than RabbitMQ for the projects requirements.
var (
	StreamName      = "HAVEN"
	SubjectAll      = StreamName + ".>"
	SubjectDelivery = StreamName + "." + "deliveries"
)

// Subject returns the subject a delivery of the given scope is published on.
func Subject(scope Scope) string {
	return SubjectDelivery + "." + string(scope)
}

// EnsureStream creates or updates the stream carrying realtime deliveries.
// Deliveries are only useful while they are fresh, so they age out quickly.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		MaxAge:   time.Hour,
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	return stream, nil
}
