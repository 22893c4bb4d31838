package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Source is the durable side of the relay.
type Source interface {
	Dispatch(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// PublisherFunc adapts a plain function, such as an in-process event
// handler, to Publisher.
type PublisherFunc func(ctx context.Context, key, eventType string, payload []byte) error

func (f PublisherFunc) Publish(ctx context.Context, key, eventType string, payload []byte) error {
	return f(ctx, key, eventType, payload)
}

type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(source Source, publisher Publisher, logger *slog.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  time.Second,
		batchSize: 100,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Delivery failures are logged and retried
// on the next tick, so the stream sees every event at least once.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox relay pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush relays batches until the source is drained or a delivery fails.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.source.Dispatch(ctx, r.batchSize, r.deliver)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

func (r *Relay) deliver(ctx context.Context, rec Record) error {
	if err := r.publisher.Publish(ctx, rec.AggregateID, rec.EventType, rec.Payload); err != nil {
		return err
	}
	r.logger.Debug("outbox record relayed", "event_id", rec.EventID, "event_type", rec.EventType, "order_id", rec.AggregateID)
	return nil
}
