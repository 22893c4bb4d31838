package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
)

// Initiator starts a payment attempt for a pending order.
type Initiator struct {
	store       store.Store
	gateway     Gateway
	currency    string
	callbackURL string
	logger      *slog.Logger
	now         func() time.Time
}

type InitiatorOption func(*Initiator)

func WithCallbackURL(url string) InitiatorOption {
	return func(i *Initiator) { i.callbackURL = url }
}

func WithCurrency(currency string) InitiatorOption {
	return func(i *Initiator) { i.currency = currency }
}

func WithClock(now func() time.Time) InitiatorOption {
	return func(i *Initiator) { i.now = now }
}

func NewInitiator(st store.Store, gateway Gateway, logger *slog.Logger, opts ...InitiatorOption) *Initiator {
	i := &Initiator{
		store:    st,
		gateway:  gateway,
		currency: "NGN",
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Initiate records a fresh payment reference on the order and asks the
// gateway to host the charge. The reference is committed before the gateway
// is called, so a callback can never arrive for a reference the ledger does
// not know. A later attempt becomes the order's current reference while every
// earlier one keeps resolving to the order, so a charge completed through an
// abandoned checkout page still settles it.
func (i *Initiator) Initiate(ctx context.Context, userID, orderID string) (*Authorization, error) {
	var charge Charge

	err := i.store.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(userID) {
			return domain.ErrForbidden
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPending
		}

		email, err := tx.CustomerEmail(ctx, order.CustomerID)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		if email == "" {
			return domain.ErrMissingEmail
		}

		ref := domain.NewPaymentRef(order.ID, i.now())
		if err := tx.SetPaymentRef(ctx, order.ID, ref); err != nil {
			return err
		}

		charge = Charge{
			OrderID:     order.ID,
			Reference:   ref,
			Email:       email,
			Amount:      order.TotalAmount,
			Currency:    i.currency,
			CallbackURL: i.callbackURL,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	auth, err := i.gateway.Initialize(ctx, charge)
	if err != nil {
		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %v", ErrGateway, err)
		}
		i.logger.Error("payment initialization failed",
			"error", err, "order_id", charge.OrderID, "payment_ref", charge.Reference, "provider", i.gateway.Name())
		return nil, err
	}

	i.logger.Info("payment initialized",
		"order_id", charge.OrderID, "payment_ref", charge.Reference, "provider", i.gateway.Name(), "amount", charge.Amount)
	return auth, nil
}
