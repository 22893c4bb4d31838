package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
)

type Repo interface {
	Items(ctx context.Context, userID string) ([]domain.CartItem, error)
	Add(ctx context.Context, userID string, item domain.CartItem) error
	Clear(ctx context.Context, userID string) error
}

type Catalog interface {
	Product(ctx context.Context, id string) (*domain.Product, error)
}

type Handler struct {
	repo    Repo
	catalog Catalog
	logger  *slog.Logger
}

func NewHandler(repo Repo, catalog Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := h.repo.Items(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read cart", "error", err, "customer_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

type addItemRequest struct {
	ProductID string                 `json:"product_id"`
	Quantity  int                    `json:"quantity"`
	Variant   domain.VariantSelector `json:"variant"`
}

// HandleAdd resolves the selection against the catalog before storing it so
// a cart never holds an entry checkout would reject for its shape.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Error())
		return
	}

	product, err := h.catalog.Product(r.Context(), req.ProductID)
	if errors.Is(err, domain.ErrProductNotFound) {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load product", "error", err, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := domain.ResolveUnit(product, req.Variant); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := domain.CartItem{ProductID: req.ProductID, Quantity: req.Quantity, Variant: req.Variant}
	if err := h.repo.Add(r.Context(), userID, item); err != nil {
		h.logger.Error("failed to add cart item", "error", err, "customer_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items, err := h.repo.Items(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read cart", "error", err, "customer_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "customer_id", userID, "product_id", req.ProductID, "variant", req.Variant.String())
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.repo.Clear(r.Context(), userID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "customer_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
