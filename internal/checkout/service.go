// Package checkout turns a customer's cart into a pending order at the
// prices in effect at that moment. Stock is checked but never taken here;
// settlement takes it once payment is confirmed.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
)

type InvoiceEmitter interface {
	Emit(ctx context.Context, order *domain.Order) (string, error)
}

type Initiator struct {
	store    store.Store
	invoices InvoiceEmitter
	logger   *slog.Logger
	now      func() time.Time
	created  metric.Int64Counter
}

type Option func(*Initiator)

func WithClock(now func() time.Time) Option {
	return func(i *Initiator) { i.now = now }
}

// NewInitiator builds the checkout service. invoices may be nil, in which
// case orders are created without a receipt.
func NewInitiator(st store.Store, invoices InvoiceEmitter, logger *slog.Logger, opts ...Option) (*Initiator, error) {
	created, err := otel.GetMeterProvider().Meter("github.com/Druid-alpha/shoplux-BE/internal/checkout").
		Int64Counter("shoplux.checkout.orders", metric.WithDescription("Checkout attempts by result."))
	if err != nil {
		return nil, fmt.Errorf("create checkout metrics: %w", err)
	}

	i := &Initiator{
		store:    st,
		invoices: invoices,
		logger:   logger,
		now:      time.Now,
		created:  created,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// CreateOrder snapshots the cart into a pending order and clears the cart in
// the same transaction. The invoice is produced after commit and its failure
// only leaves InvoiceURL empty.
func (i *Initiator) CreateOrder(ctx context.Context, userID string) (*domain.Order, error) {
	var order *domain.Order

	err := i.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		items, err := tx.CartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyCart
		}

		lines := make([]domain.OrderLine, 0, len(items))
		for _, item := range items {
			line, err := priceLine(ctx, tx, item)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		order = domain.NewOrder(userID, lines, i.now().UTC())
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, userID)
	})
	if err != nil {
		i.created.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "rejected")))
		return nil, err
	}

	i.created.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "created")))
	i.logger.Info("order created", "order_id", order.ID, "customer_id", userID, "total_amount", order.TotalAmount)

	i.attachInvoice(ctx, order)
	return order, nil
}

// priceLine resolves the counter a cart entry draws from and locks its
// current price. The stock comparison is advisory.
func priceLine(ctx context.Context, tx store.Tx, item domain.CartItem) (domain.OrderLine, error) {
	if item.Quantity <= 0 {
		return domain.OrderLine{}, domain.ErrInvalidQuantity
	}

	product, err := tx.Product(ctx, item.ProductID)
	if err != nil {
		return domain.OrderLine{}, err
	}
	unit, err := domain.ResolveUnit(product, item.Variant)
	if err != nil {
		return domain.OrderLine{}, err
	}
	if unit.Stock < item.Quantity {
		return domain.OrderLine{}, fmt.Errorf("%w: %s has %d, cart wants %d",
			domain.ErrInsufficientStock, product.Title, unit.Stock, item.Quantity)
	}

	return domain.OrderLine{
		ProductID:       product.ID,
		Title:           product.Title,
		Quantity:        item.Quantity,
		PriceAtPurchase: unit.Price,
		Variant:         item.Variant,
	}, nil
}

func (i *Initiator) attachInvoice(ctx context.Context, order *domain.Order) {
	if i.invoices == nil {
		return
	}

	url, err := i.invoices.Emit(ctx, order)
	if err != nil {
		i.logger.Warn("invoice generation failed", "order_id", order.ID, "error", err)
		return
	}

	err = i.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetInvoiceURL(ctx, order.ID, url)
	})
	if err != nil {
		i.logger.Warn("failed to record invoice url", "order_id", order.ID, "error", err)
		return
	}
	order.InvoiceURL = &url
}
