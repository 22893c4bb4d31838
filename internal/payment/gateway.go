// Package payment hosts the charge with an external provider: it starts
// payment attempts for pending orders and turns provider callbacks into
// verified events.
package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrInvalidSignature means a callback could not be proven to come from
	// the provider. Nothing in the payload may be trusted.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook payload")
	ErrGateway          = errors.New("payment gateway error")
)

type EventType string

const (
	EventChargeSucceeded EventType = "charge.succeeded"
	EventChargeFailed    EventType = "charge.failed"
	EventUnknown         EventType = "unknown"
)

// Event is a provider notification after authentication. Reference is the
// paymentRef recorded on the order when the attempt was started.
type Event struct {
	Type      EventType
	Reference string
	// Name is the provider's own event name, kept for logging.
	Name   string
	Amount int64
}

type Charge struct {
	OrderID     string
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	Description string
	CallbackURL string
}

type Authorization struct {
	URL       string `json:"authorization_url"`
	Reference string `json:"reference"`
}

type Gateway interface {
	Name() string
	// Initialize asks the provider to host a charge and returns where to
	// send the customer.
	Initialize(ctx context.Context, charge Charge) (*Authorization, error)
	// ParseEvent authenticates a raw callback body before decoding it and
	// returns ErrInvalidSignature when authentication fails.
	ParseEvent(payload []byte, header http.Header) (Event, error)
	// Verify asks the provider for the current outcome of a reference.
	Verify(ctx context.Context, reference string) (Event, error)
}
