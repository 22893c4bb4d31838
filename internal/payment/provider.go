package payment

import (
	"fmt"
	"net/http"

	"github.com/Druid-alpha/shoplux-BE/internal/config"
)

// NewGateway builds the adapter selected by payment_provider.
func NewGateway(cfg *config.Config, client *http.Client) (Gateway, error) {
	switch cfg.PaymentProvider {
	case "", "paystack":
		return NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, client), nil
	case "stripe":
		return NewStripe(StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.ClientURL + "/payment/success",
			CancelURL:     cfg.ClientURL + "/payment/cancel",
			HTTPClient:    client,
		}), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}
