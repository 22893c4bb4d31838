package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var producerTracer = otel.Tracer("messaging/producer")

// Producer publishes order events from the outbox relay. Messages are keyed
// by order id so every event of an order lands on the same partition in
// commit order.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
		},
	}
}

// Publish writes one already encoded event for orderID.
func (p *Producer) Publish(ctx context.Context, orderID, eventType string, payload []byte) error {
	msg := kafka.Message{Key: []byte(orderID), Value: payload}
	setEventType(&msg, eventType)

	ctx, span := producerTracer.Start(ctx, spanName("publish", eventType, p.topic),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(orderEventAttributes(p.topic, &msg)...),
		trace.WithAttributes(
			semconv.MessagingOperationName("publish"),
			semconv.MessagingOperationTypePublish,
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
