package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusFailed     OrderStatus = "failed"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusFailed:
		return true
	}
	return false
}

// Settled reports whether payment for the order has been confirmed. Every
// fulfillment state after paid implies a completed settlement.
func (s OrderStatus) Settled() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// fulfillment lists the administrative transitions. pending, paid and failed
// are owned by settlement and can never be reached through this table.
var fulfillment = map[OrderStatus]OrderStatus{
	OrderStatusPaid:       OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// CanAdvanceTo reports whether an administrator may move an order from s to next.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	want, ok := fulfillment[s]
	return ok && want == next
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// OrderLine is immutable once the order exists. PriceAtPurchase is the unit
// price in minor currency units locked at checkout.
type OrderLine struct {
	ProductID       string          `json:"product_id"`
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase int64           `json:"price_at_purchase"`
	Variant         VariantSelector `json:"variant"`
}

func (l OrderLine) Subtotal() int64 {
	return int64(l.Quantity) * l.PriceAtPurchase
}

type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id"`
	Items         []OrderLine   `json:"items"`
	TotalAmount   int64         `json:"total_amount"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	InvoiceURL    *string       `json:"invoice_url"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewOrder builds a pending order from already priced lines. The total is
// computed here once and never recomputed from catalog prices.
func NewOrder(customerID string, lines []OrderLine, now time.Time) *Order {
	var total int64
	for _, line := range lines {
		total += line.Subtotal()
	}
	return &Order{
		CustomerID:    customerID,
		Items:         lines,
		TotalAmount:   total,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (o *Order) OwnedBy(userID string) bool {
	return o.CustomerID == userID
}

// NewPaymentRef returns the gateway reference for one payment attempt.
func NewPaymentRef(orderID string, now time.Time) string {
	return fmt.Sprintf("ORD_%s_%d", orderID, now.UnixMilli())
}
