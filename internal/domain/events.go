package domain

import "time"

const (
	EventOrderSettled       = "order.settled"
	EventOrderPaymentFailed = "order.payment_failed"
)

// OrderEvent is produced inside the settlement transaction and delivered to
// the epilogue worker after commit.
type OrderEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	PaymentRef    string    `json:"payment_ref"`
	Order         Order     `json:"order"`
	Timestamp     time.Time `json:"timestamp"`
}
