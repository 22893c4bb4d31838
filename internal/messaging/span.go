package messaging

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	attrEventType = attribute.Key("shoplux.event_type")
	attrOrderID   = attribute.Key("shoplux.order_id")
)

// spanName reads "publish order.settled" or "process order.payment_failed".
// Messages without a type fall back to the topic.
func spanName(operation, eventType, topic string) string {
	if eventType == "" {
		return operation + " " + topic
	}
	return operation + " " + eventType
}

// orderEventAttributes describes an order event on the wire. Events are keyed
// by order id, so the key doubles as the order attribute.
func orderEventAttributes(topic string, msg *kafka.Message) []attribute.KeyValue {
	orderID := string(msg.Key)
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		semconv.MessagingKafkaMessageKey(orderID),
		attrOrderID.String(orderID),
	}
	if eventType := EventType(msg); eventType != "" {
		attrs = append(attrs, attrEventType.String(eventType))
	}
	return attrs
}
