package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Druid-alpha/shoplux-BE/internal/payment"
)

// Reconciler settles orders whose callback never arrived by asking the
// gateway directly. The verified outcome goes through the same Processor as
// a webhook, so reconciling an already settled order is a no-op.
type Reconciler struct {
	gateway   payment.Gateway
	processor *Processor
	logger    *slog.Logger
}

func NewReconciler(gateway payment.Gateway, processor *Processor, logger *slog.Logger) *Reconciler {
	return &Reconciler{gateway: gateway, processor: processor, logger: logger}
}

func (r *Reconciler) Reconcile(ctx context.Context, reference string) (Outcome, error) {
	ev, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return "", fmt.Errorf("verify %s with %s: %w", reference, r.gateway.Name(), err)
	}
	if ev.Reference == "" {
		ev.Reference = reference
	}

	r.logger.Info("payment verified with provider", "payment_ref", reference, "provider", r.gateway.Name(), "event", ev.Name)
	return r.processor.Process(ctx, ev)
}
