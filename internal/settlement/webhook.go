package settlement

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Druid-alpha/shoplux-BE/internal/payment"
)

const maxWebhookBytes = 64 << 10

type WebhookHandler struct {
	gateway   payment.Gateway
	processor *Processor
	logger    *slog.Logger
}

func NewWebhookHandler(gateway payment.Gateway, processor *Processor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{gateway: gateway, processor: processor, logger: logger}
}

type webhookResponse struct {
	Status Outcome `json:"status"`
}

// HandleWebhook authenticates the raw body before anything else looks at it.
// Every processed outcome, including duplicates and ignored events, is
// acknowledged with 200 so the provider stops redelivering; processing
// errors return 500 so it tries again.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.logger.Warn("webhook body could not be read", "provider", h.gateway.Name(), "error", err)
		h.writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.gateway.ParseEvent(payload, r.Header)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", "provider", h.gateway.Name(), "remote_addr", r.RemoteAddr)
			h.writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		h.logger.Warn("malformed webhook payload", "provider", h.gateway.Name(), "error", err)
		h.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	outcome, err := h.processor.Process(r.Context(), ev)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{Status: outcome})
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
