package settlement

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Druid-alpha/shoplux-BE/internal/payment"
)

type metrics struct {
	events   metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	events, err := meter.Int64Counter("shoplux.settlement.events",
		metric.WithDescription("Payment events processed, by event type and outcome."))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("shoplux.settlement.duration",
		metric.WithDescription("Time spent applying a payment event."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &metrics{events: events, duration: duration}, nil
}

func (m *metrics) record(ctx context.Context, eventType payment.EventType, outcome Outcome, err error, elapsed time.Duration) {
	result := string(outcome)
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("event_type", string(eventType)),
		attribute.String("outcome", result),
	)
	m.events.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
