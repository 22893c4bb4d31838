package cart_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/cart"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler() (*cart.Handler, *memstore.Store) {
	st := memstore.New()
	st.AddProduct(domain.Product{ID: "lamp", Title: "Lamp", Price: 5000, Stock: 4})
	st.AddProduct(domain.Product{ID: "shirt", Title: "Shirt", Variants: []domain.Variant{
		{SKU: "L", Price: 3000, Stock: 1},
	}})
	return cart.NewHandler(st.Carts(), st, discardLogger()), st
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: userID, Role: auth.RoleUser}))
}

func TestHandler_HandleAdd(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "plain product", body: `{"product_id":"lamp","quantity":2}`, wantStatus: http.StatusOK},
		{name: "variant by sku", body: `{"product_id":"shirt","quantity":1,"variant":"L"}`, wantStatus: http.StatusOK},
		{name: "variant by object", body: `{"product_id":"shirt","quantity":1,"variant":{"sku":"L"}}`, wantStatus: http.StatusOK},
		{name: "variant required", body: `{"product_id":"shirt","quantity":1}`, wantStatus: http.StatusBadRequest},
		{name: "unknown variant", body: `{"product_id":"shirt","quantity":1,"variant":"XL"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown product", body: `{"product_id":"ghost","quantity":1}`, wantStatus: http.StatusNotFound},
		{name: "zero quantity", body: `{"product_id":"lamp","quantity":0}`, wantStatus: http.StatusBadRequest},
		{name: "missing product id", body: `{"quantity":1}`, wantStatus: http.StatusBadRequest},
		{name: "bad body", body: `[`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newHandler()
			req := withUser(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(tt.body)), "u1")
			rec := httptest.NewRecorder()

			h.HandleAdd(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("same unit merges quantity", func(t *testing.T) {
		h, st := newHandler()
		for range 2 {
			req := withUser(httptest.NewRequest(http.MethodPost, "/cart/items",
				strings.NewReader(`{"product_id":"lamp","quantity":2}`)), "u1")
			h.HandleAdd(httptest.NewRecorder(), req)
		}

		items, err := st.Carts().Items(context.Background(), "u1")
		if err != nil {
			t.Fatalf("items: %v", err)
		}
		if len(items) != 1 || items[0].Quantity != 4 {
			t.Errorf("expected one entry with quantity 4, got %+v", items)
		}
	})
}

func TestHandler_HandleGetAndClear(t *testing.T) {
	h, st := newHandler()
	ctx := context.Background()
	_ = st.Carts().Add(ctx, "u1", domain.CartItem{ProductID: "shirt", Quantity: 1, Variant: domain.VariantSKU("L")})

	rec := httptest.NewRecorder()
	h.HandleGet(rec, withUser(httptest.NewRequest(http.MethodGet, "/cart", nil), "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []domain.CartItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Variant != domain.VariantSKU("L") {
		t.Errorf("unexpected cart %+v", items)
	}

	rec = httptest.NewRecorder()
	h.HandleClear(rec, withUser(httptest.NewRequest(http.MethodDelete, "/cart", nil), "u1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if left, _ := st.Carts().Items(ctx, "u1"); len(left) != 0 {
		t.Errorf("expected empty cart, got %d items", len(left))
	}
}

func TestHandler_RequiresIdentity(t *testing.T) {
	h, _ := newHandler()
	rec := httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
