package messaging

import "github.com/segmentio/kafka-go"

const eventTypeHeader = "event-type"

// MessageCarrier exposes Kafka headers to the OpenTelemetry propagator.
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

func (c *MessageCarrier) Get(key string) string {
	return header(c.msg, key)
}

func (c *MessageCarrier) Set(key, value string) {
	setHeader(c.msg, key, value)
}

func (c *MessageCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

func header(msg *kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setHeader(msg *kafka.Message, key, value string) {
	for i, h := range msg.Headers {
		if h.Key == key {
			msg.Headers[i].Value = []byte(value)
			return
		}
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func setEventType(msg *kafka.Message, eventType string) {
	if eventType != "" {
		setHeader(msg, eventTypeHeader, eventType)
	}
}

// EventType returns the type a producer stamped on the message, if any.
func EventType(msg *kafka.Message) string {
	return header(msg, eventTypeHeader)
}
