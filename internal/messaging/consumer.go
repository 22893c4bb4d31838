package messaging

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// HandlerFunc processes one order event payload. Returning an error stops the
// consumer without committing the message, so it is redelivered on restart.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Consumer feeds order events to a handler one at a time and commits each
// only after the handler succeeds.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	groupID string
	accept  map[string]bool
}

type consumerConfig struct {
	reader kafka.ReaderConfig
	accept map[string]bool
}

type ConsumerOption func(*consumerConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.StartOffset = offset
	}
}

// WithEventTypes limits the handler to the named order event types. Other
// events are committed without being handled.
func WithEventTypes(types ...string) ConsumerOption {
	return func(cfg *consumerConfig) {
		if cfg.accept == nil {
			cfg.accept = make(map[string]bool, len(types))
		}
		for _, t := range types {
			cfg.accept[t] = true
		}
	}
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{reader: kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{
		reader:  kafka.NewReader(cfg.reader),
		topic:   topic,
		groupID: groupID,
		accept:  cfg.accept,
	}
}

func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if c.wants(&msg) {
			if err := c.processMessage(ctx, msg, handler); err != nil {
				return err
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) wants(msg *kafka.Message) bool {
	return c.accept == nil || c.accept[EventType(msg)]
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	parent := otel.GetTextMapPropagator().Extract(ctx, NewMessageCarrier(&msg))

	ctx, span := consumerTracer.Start(parent, spanName("process", EventType(&msg), c.topic),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(orderEventAttributes(c.topic, &msg)...),
		trace.WithAttributes(
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
		),
	)
	defer span.End()

	if err := handler(ctx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
