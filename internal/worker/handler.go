package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/invoice"
	"github.com/Druid-alpha/shoplux-BE/internal/notify"
)

type InvoiceEmitter interface {
	Emit(ctx context.Context, order *domain.Order) (string, error)
}

type InvoiceRecorder interface {
	SetInvoiceURL(ctx context.Context, id, url string) error
}

type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

// EpilogueHandler runs the side effects that follow a committed settlement:
// the paid invoice and the customer emails. None of its failures reach the
// order, which is already final when the event is produced.
type EpilogueHandler struct {
	invoices InvoiceEmitter
	recorder InvoiceRecorder
	mailer   Mailer
	currency string
	logger   *slog.Logger
}

func NewEpilogueHandler(invoices InvoiceEmitter, recorder InvoiceRecorder, mailer Mailer, currency string, logger *slog.Logger) *EpilogueHandler {
	return &EpilogueHandler{
		invoices: invoices,
		recorder: recorder,
		mailer:   mailer,
		currency: currency,
		logger:   logger,
	}
}

// Handle always returns nil so one bad event cannot stall the stream behind
// it. Delivery is at least once, so a customer may receive a receipt twice.
func (h *EpilogueHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("skipping undecodable order event", "error", err, "payload_bytes", len(payload))
		return nil
	}

	h.logger.Info("processing order event", "event_type", event.Type, "order_id", event.OrderID, "payment_ref", event.PaymentRef)

	switch event.Type {
	case domain.EventOrderSettled:
		h.settled(ctx, event)
	case domain.EventOrderPaymentFailed:
		h.paymentFailed(ctx, event)
	default:
		h.logger.Warn("skipping unknown order event", "event_type", event.Type, "event_id", event.ID)
	}
	return nil
}

func (h *EpilogueHandler) settled(ctx context.Context, event domain.OrderEvent) {
	order := event.Order
	if url, err := h.invoices.Emit(ctx, &order); err != nil {
		h.logger.Error("failed to generate invoice", "error", err, "order_id", event.OrderID)
	} else if err := h.recorder.SetInvoiceURL(ctx, event.OrderID, url); err != nil {
		h.logger.Error("failed to record invoice url", "error", err, "order_id", event.OrderID)
	} else {
		order.InvoiceURL = &url
	}

	body := fmt.Sprintf("Thank you for your purchase. Payment for order %s (reference %s) was received.\n\nTotal paid: %s\n",
		order.ID, event.PaymentRef, invoice.Money(order.TotalAmount, h.currency))
	if order.InvoiceURL != nil {
		body += "Invoice: " + *order.InvoiceURL + "\n"
	}

	h.send(ctx, event, "Payment received: order "+order.ID, body)
}

func (h *EpilogueHandler) paymentFailed(ctx context.Context, event domain.OrderEvent) {
	body := fmt.Sprintf("We could not process the payment for order %s (reference %s). No items were charged or reserved.\n",
		event.OrderID, event.PaymentRef)
	h.send(ctx, event, "Payment failed: order "+event.OrderID, body)
}

func (h *EpilogueHandler) send(ctx context.Context, event domain.OrderEvent, subject, body string) {
	if event.CustomerEmail == "" {
		h.logger.Warn("no email on file, notification skipped", "order_id", event.OrderID, "customer_id", event.CustomerID)
		return
	}

	msg := notify.Message{To: event.CustomerEmail, Subject: subject, Body: body}
	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", event.OrderID, "event_type", event.Type)
		return
	}

	h.logger.Info("customer notified", "order_id", event.OrderID, "event_type", event.Type)
}
