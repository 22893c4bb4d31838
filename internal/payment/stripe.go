package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	stripeRefKey          = "payment_ref"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	HTTPClient    *http.Client
}

// Stripe hosts the charge in a Checkout Session. The payment reference
// travels in the payment intent metadata so webhook events can be correlated
// with the order.
type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripe(cfg StripeConfig) *Stripe {
	var backends *stripe.Backends
	if cfg.HTTPClient != nil {
		backends = stripe.NewBackends(cfg.HTTPClient)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &Stripe{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Initialize(ctx context.Context, charge Charge) (*Authorization, error) {
	successURL := charge.CallbackURL
	if successURL == "" {
		successURL = s.successURL
	}
	description := charge.Description
	if description == "" {
		description = "Order " + charge.OrderID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(charge.Reference),
		CustomerEmail:     stripe.String(charge.Email),
		SuccessURL:        stripe.String(successURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(charge.Currency)),
					UnitAmount: stripe.Int64(charge.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id":   charge.OrderID,
				stripeRefKey: charge.Reference,
			},
		},
	}
	if s.cancelURL != "" {
		params.CancelURL = stripe.String(s.cancelURL)
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe checkout session: %v", ErrGateway, err)
	}

	return &Authorization{URL: sess.URL, Reference: charge.Reference}, nil
}

func (s *Stripe) ParseEvent(payload []byte, header http.Header) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(StripeSignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isStripeSignatureError(err) {
			return Event{}, ErrInvalidSignature
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := Event{Name: string(event.Type), Type: EventUnknown}
	switch string(event.Type) {
	case "payment_intent.succeeded":
		ev.Type = EventChargeSucceeded
	case "payment_intent.payment_failed":
		ev.Type = EventChargeFailed
	default:
		return ev, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev.Reference = intent.Metadata[stripeRefKey]
	ev.Amount = intent.Amount
	if ev.Reference == "" {
		// Payment intents created outside checkout carry no reference.
		ev.Type = EventUnknown
	}
	return ev, nil
}

func isStripeSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (s *Stripe) Verify(ctx context.Context, reference string) (Event, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", stripeRefKey, reference)
	params.Context = ctx

	iter := s.api.PaymentIntents.Search(params)
	ev := Event{Reference: reference, Type: EventUnknown}
	for iter.Next() {
		intent := iter.PaymentIntent()
		ev.Name = "verify." + string(intent.Status)
		ev.Amount = intent.Amount
		switch {
		case intent.Status == stripe.PaymentIntentStatusSucceeded:
			ev.Type = EventChargeSucceeded
			return ev, nil
		case intent.Status == stripe.PaymentIntentStatusCanceled,
			intent.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && intent.LastPaymentError != nil:
			ev.Type = EventChargeFailed
		}
	}
	if err := iter.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: stripe payment intent search: %v", ErrGateway, err)
	}
	return ev, nil
}
