package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	spansOnce sync.Once
	spans     *tracetest.InMemoryExporter
)

// recordSpans installs an in-memory tracer provider once per test binary and
// clears what earlier tests recorded.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	spansOnce.Do(func() {
		spans = tracetest.NewInMemoryExporter()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans)))
	})
	spans.Reset()
	return spans
}

func attr(stub tracetest.SpanStub, key attribute.Key) string {
	for _, kv := range stub.Attributes {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestSpanName(t *testing.T) {
	tests := []struct {
		op, eventType, topic, want string
	}{
		{"publish", "order.settled", "order.events", "publish order.settled"},
		{"process", "order.payment_failed", "order.events", "process order.payment_failed"},
		{"process", "", "order.events", "process order.events"},
	}
	for _, tt := range tests {
		if got := spanName(tt.op, tt.eventType, tt.topic); got != tt.want {
			t.Errorf("spanName(%q, %q, %q) = %q, want %q", tt.op, tt.eventType, tt.topic, got, tt.want)
		}
	}
}

func TestConsumer_processMessage(t *testing.T) {
	c := &Consumer{topic: "order.events", groupID: "epilogue"}

	t.Run("span is named after the order event", func(t *testing.T) {
		rec := recordSpans(t)
		msg := kafka.Message{Key: []byte("o-42"), Value: []byte(`{}`)}
		setEventType(&msg, "order.settled")

		if err := c.processMessage(context.Background(), msg, func(context.Context, []byte) error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := rec.GetSpans()
		if len(got) != 1 {
			t.Fatalf("expected 1 span, got %d", len(got))
		}
		if got[0].Name != "process order.settled" {
			t.Errorf("expected span process order.settled, got %q", got[0].Name)
		}
		if v := attr(got[0], attrOrderID); v != "o-42" {
			t.Errorf("expected order id o-42, got %q", v)
		}
		if v := attr(got[0], attrEventType); v != "order.settled" {
			t.Errorf("expected event type order.settled, got %q", v)
		}
	})

	t.Run("handler failure marks the span", func(t *testing.T) {
		rec := recordSpans(t)
		boom := errors.New("mailer down")
		msg := kafka.Message{Key: []byte("o-7")}

		err := c.processMessage(context.Background(), msg, func(context.Context, []byte) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected handler error, got %v", err)
		}

		got := rec.GetSpans()
		if len(got) != 1 {
			t.Fatalf("expected 1 span, got %d", len(got))
		}
		if got[0].Name != "process order.events" {
			t.Errorf("expected topic fallback name, got %q", got[0].Name)
		}
		if got[0].Status.Code != codes.Error {
			t.Errorf("expected error status, got %v", got[0].Status.Code)
		}
	})
}

func TestConsumer_wants(t *testing.T) {
	settled := kafka.Message{}
	setEventType(&settled, "order.settled")
	untyped := kafka.Message{}

	t.Run("no filter takes everything", func(t *testing.T) {
		c := &Consumer{}
		if !c.wants(&settled) || !c.wants(&untyped) {
			t.Error("expected every message to be handled")
		}
	})

	t.Run("filter skips other event types", func(t *testing.T) {
		cfg := consumerConfig{}
		WithEventTypes("order.payment_failed")(&cfg)
		c := &Consumer{accept: cfg.accept}

		if c.wants(&settled) {
			t.Error("expected order.settled to be skipped")
		}
		setEventType(&untyped, "order.payment_failed")
		if !c.wants(&untyped) {
			t.Error("expected order.payment_failed to be handled")
		}
	})
}
