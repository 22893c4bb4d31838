package payment

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
)

type Handler struct {
	initiator *Initiator
	logger    *slog.Logger
}

func NewHandler(initiator *Initiator, logger *slog.Logger) *Handler {
	return &Handler{initiator: initiator, logger: logger}
}

type initRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	authz, err := h.initiator.Initiate(r.Context(), userID, req.OrderID)
	if err != nil {
		switch status := statusFor(err); status {
		case http.StatusInternalServerError:
			h.logger.Error("failed to initialize payment", "error", err, "order_id", req.OrderID)
			h.writeError(w, status, "internal server error")
		case http.StatusBadGateway:
			h.writeError(w, status, "payment initialization failed")
		default:
			h.writeError(w, status, err.Error())
		}
		return
	}

	h.writeJSON(w, http.StatusOK, authz)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOrderNotPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingEmail):
		return http.StatusBadRequest
	case errors.Is(err, ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
