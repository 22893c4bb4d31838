// Package settlement applies verified payment outcomes to orders. A
// successful charge moves an order from pending to paid and takes its stock in
// the same transaction; everything that may fail without consequence runs
// later, driven by the events the transaction leaves in the outbox.
package settlement

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/payment"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
)

type Outcome string

const (
	OutcomeSettled      Outcome = "settled"
	OutcomeFailed       Outcome = "failed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnknownOrder Outcome = "unknown_order"
	// OutcomeAmountMismatch leaves the order pending because the provider
	// reported a charge that differs from the order total.
	OutcomeAmountMismatch Outcome = "amount_mismatch"
)

type Processor struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics
	now     func() time.Time
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(st store.Store, logger *slog.Logger, opts ...Option) (*Processor, error) {
	m, err := newMetrics(otel.GetMeterProvider().Meter("github.com/Druid-alpha/shoplux-BE/internal/settlement"))
	if err != nil {
		return nil, fmt.Errorf("create settlement metrics: %w", err)
	}

	p := &Processor{
		store:   st,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process applies one verified event. Repeated or concurrent deliveries of
// the same reference serialize on the order row; every delivery after the
// first observes the settled order and returns OutcomeDuplicate. A non-nil
// error means nothing was written and the provider should redeliver.
func (p *Processor) Process(ctx context.Context, ev payment.Event) (Outcome, error) {
	start := time.Now()

	var (
		outcome Outcome
		err     error
	)
	switch ev.Type {
	case payment.EventChargeSucceeded:
		outcome, err = p.settle(ctx, ev)
	case payment.EventChargeFailed:
		outcome, err = p.fail(ctx, ev.Reference)
	default:
		outcome = OutcomeIgnored
	}

	p.metrics.record(ctx, ev.Type, outcome, err, time.Since(start))

	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		p.logger.Warn("settlement rejected, order remains pending",
			"payment_ref", ev.Reference, "event", ev.Name, "error", err)
	case err != nil:
		p.logger.Error("settlement failed", "payment_ref", ev.Reference, "event", ev.Name, "error", err)
	default:
		p.logger.Info("payment event processed", "payment_ref", ev.Reference, "event", ev.Name, "outcome", outcome)
	}

	return outcome, err
}

// settle accepts a success for any reference issued for the order, so a
// charge completed through an abandoned attempt still pays for it.
func (p *Processor) settle(ctx context.Context, ev payment.Event) (Outcome, error) {
	var outcome Outcome
	ref := ev.Reference

	err := p.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.OrderByPaymentRef(ctx, ref)
		if errors.Is(err, domain.ErrOrderNotFound) {
			p.logger.Warn("success event for an unknown payment reference", "payment_ref", ref, "amount", ev.Amount)
			outcome = OutcomeUnknownOrder
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case order.Status.Settled():
			if order.PaymentRef != ref {
				p.logger.Warn("second successful charge for a settled order",
					"order_id", order.ID, "payment_ref", ref, "settled_ref", order.PaymentRef, "amount", ev.Amount)
			}
			outcome = OutcomeDuplicate
			return nil
		case order.Status == domain.OrderStatusFailed:
			p.logger.Warn("success event for a failed order ignored", "order_id", order.ID, "payment_ref", ref)
			outcome = OutcomeIgnored
			return nil
		case ev.Amount != order.TotalAmount:
			p.logger.Warn("charged amount does not match order total, order left pending",
				"order_id", order.ID, "payment_ref", ref, "amount", ev.Amount, "total", order.TotalAmount)
			outcome = OutcomeAmountMismatch
			return nil
		}

		if order.PaymentRef != ref {
			p.logger.Info("order paid through an earlier payment attempt",
				"order_id", order.ID, "payment_ref", ref, "latest_ref", order.PaymentRef)
			if err := tx.SetPaymentRef(ctx, order.ID, ref); err != nil {
				return err
			}
			order.PaymentRef = ref
		}

		for _, line := range decrementOrder(order.Items) {
			if err := tx.DecrementStock(ctx, line.ProductID, line.Variant, line.Quantity); err != nil {
				return fmt.Errorf("settle order %s: %w", order.ID, err)
			}
		}

		if err := tx.SetStatus(ctx, order.ID, domain.OrderStatusPaid, domain.PaymentStatusPaid); err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, order.CustomerID); err != nil {
			return err
		}

		order.Status = domain.OrderStatusPaid
		order.PaymentStatus = domain.PaymentStatusPaid
		if err := p.enqueue(ctx, tx, domain.EventOrderSettled, order); err != nil {
			return err
		}

		outcome = OutcomeSettled
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (p *Processor) fail(ctx context.Context, ref string) (Outcome, error) {
	var outcome Outcome

	err := p.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.OrderByPaymentRef(ctx, ref)
		if errors.Is(err, domain.ErrOrderNotFound) {
			outcome = OutcomeUnknownOrder
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case order.PaymentRef != ref:
			p.logger.Info("failure of a superseded payment attempt ignored",
				"order_id", order.ID, "payment_ref", ref, "latest_ref", order.PaymentRef)
			outcome = OutcomeIgnored
			return nil
		case order.Status == domain.OrderStatusFailed:
			outcome = OutcomeDuplicate
			return nil
		case order.Status != domain.OrderStatusPending:
			p.logger.Warn("failure event for a settled order ignored", "order_id", order.ID, "payment_ref", ref, "status", order.Status)
			outcome = OutcomeIgnored
			return nil
		}

		if err := tx.SetStatus(ctx, order.ID, domain.OrderStatusFailed, domain.PaymentStatusFailed); err != nil {
			return err
		}

		order.Status = domain.OrderStatusFailed
		order.PaymentStatus = domain.PaymentStatusFailed
		if err := p.enqueue(ctx, tx, domain.EventOrderPaymentFailed, order); err != nil {
			return err
		}

		outcome = OutcomeFailed
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (p *Processor) enqueue(ctx context.Context, tx store.Tx, eventType string, order *domain.Order) error {
	email, err := tx.CustomerEmail(ctx, order.CustomerID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	return tx.Enqueue(ctx, domain.OrderEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CustomerEmail: email,
		PaymentRef:    order.PaymentRef,
		Order:         *order,
		Timestamp:     p.now().UTC(),
	})
}

// decrementOrder sorts lines by counter so that two settlements touching the
// same counters always lock them in the same order.
func decrementOrder(lines []domain.OrderLine) []domain.OrderLine {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b domain.OrderLine) int {
		return cmp.Or(
			cmp.Compare(a.ProductID, b.ProductID),
			cmp.Compare(a.Variant.String(), b.Variant.String()),
		)
	})
	return sorted
}
