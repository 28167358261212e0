package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

func Publisher(ctx context.Context, js jetstream.JetStream, payload Delivery) (uint64, error) {
	if js == nil {
		return 0, fmt.Errorf("jetstream interface is nil")
	}
	if ctx == nil {
		return 0, fmt.Errorf("context is nil")
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	subject := Subject(payload.Scope)
	pubAck, err := js.Publish(ctx,
		subject,
		p,
		jetstream.WithMsgID(uuid.NewString()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to publish to stream [%s]: %w", subject, err)
	}
	slog.DebugContext(ctx, "delivery published",
		"subject", subject,
		"event", payload.Event.Type,
		"sequence", pubAck.Sequence)

	return pubAck.Sequence, nil
}

// Subscriber consumes deliveries published from now on. The consumer is
// ephemeral, so every process receives every delivery.
func Subscriber(ctx context.Context, stream jetstream.Stream, handle func(Delivery)) error {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: SubjectAll,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var payload Delivery

		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			slog.Warn("could not decode delivery", "error", err)
			_ = msg.Term()
			return
		}

		_ = msg.Ack()

		handle(payload)
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(ctx jetstream.ConsumeContext, err error) {
		slog.Error("consumer error", "error", err)
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func(ctx context.Context, consumeCtx jetstream.ConsumeContext) {
		<-ctx.Done()
		consumeCtx.Drain()
	}(ctx, consumeCtx)

	return nil
}

// JetStream is a Broker backed by a NATS JetStream stream.
type JetStream struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

func NewJetStream(ctx context.Context, js jetstream.JetStream) (*JetStream, error) {
	stream, err := EnsureStream(ctx, js)
	if err != nil {
		return nil, err
	}
	return &JetStream{js: js, stream: stream}, nil
}

func (b *JetStream) Publish(ctx context.Context, d Delivery) error {
	_, err := Publisher(ctx, b.js, d)
	return err
}

func (b *JetStream) Subscribe(ctx context.Context, handle func(Delivery)) error {
	return Subscriber(ctx, b.stream, handle)
}
