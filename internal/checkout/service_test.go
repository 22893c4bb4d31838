package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInvoices struct {
	url   string
	err   error
	calls int
}

func (f *fakeInvoices) Emit(_ context.Context, order *domain.Order) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url + order.ID, nil
}

func newInitiator(t *testing.T, st *memstore.Store, invoices InvoiceEmitter) *Initiator {
	t.Helper()
	i, err := NewInitiator(st, invoices, discardLogger(),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("new initiator: %v", err)
	}
	return i
}

func addToCart(t *testing.T, st *memstore.Store, userID, productID string, sel domain.VariantSelector, qty int) {
	t.Helper()
	err := st.Carts().Add(context.Background(), userID, domain.CartItem{ProductID: productID, Variant: sel, Quantity: qty})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

func seedCatalog(st *memstore.Store) {
	st.AddProduct(domain.Product{ID: "lamp", Title: "Lamp", Price: 5000, Stock: 4})
	st.AddProduct(domain.Product{ID: "shirt", Title: "Shirt", Variants: []domain.Variant{
		{SKU: "S", Price: 2500, Stock: 3},
		{SKU: "L", Price: 3000, Stock: 1},
	}})
}

func TestInitiator_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots prices and clears the cart without taking stock", func(t *testing.T) {
		st := memstore.New()
		seedCatalog(st)
		addToCart(t, st, "u1", "lamp", domain.NoVariant(), 2)
		addToCart(t, st, "u1", "shirt", domain.VariantSKU("L"), 1)

		order, err := newInitiator(t, st, nil).CreateOrder(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
			t.Errorf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
		}
		if order.TotalAmount != 13000 {
			t.Errorf("expected total 13000, got %d", order.TotalAmount)
		}
		if len(order.Items) != 2 || order.Items[1].PriceAtPurchase != 3000 || order.Items[1].Title != "Shirt" {
			t.Errorf("unexpected lines %+v", order.Items)
		}
		if order.InvoiceURL != nil {
			t.Errorf("expected no invoice, got %s", *order.InvoiceURL)
		}

		if n, _ := st.Stock("lamp", domain.NoVariant()); n != 4 {
			t.Errorf("expected lamp stock untouched at 4, got %d", n)
		}
		if n, _ := st.Stock("shirt", domain.VariantSKU("L")); n != 1 {
			t.Errorf("expected shirt L stock untouched at 1, got %d", n)
		}
		if items, _ := st.Carts().Items(ctx, "u1"); len(items) != 0 {
			t.Errorf("expected empty cart, got %d items", len(items))
		}
	})

	t.Run("later price changes do not touch the order", func(t *testing.T) {
		st := memstore.New()
		seedCatalog(st)
		addToCart(t, st, "u1", "lamp", domain.NoVariant(), 1)

		order, err := newInitiator(t, st, nil).CreateOrder(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := st.SetPrice("lamp", domain.NoVariant(), 9999); err != nil {
			t.Fatalf("set price: %v", err)
		}

		got, err := st.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if got.TotalAmount != 5000 || got.Items[0].PriceAtPurchase != 5000 {
			t.Errorf("expected locked price 5000, got total %d line %d", got.TotalAmount, got.Items[0].PriceAtPurchase)
		}
	})

	t.Run("attaches the invoice url", func(t *testing.T) {
		st := memstore.New()
		seedCatalog(st)
		addToCart(t, st, "u1", "lamp", domain.NoVariant(), 1)
		invoices := &fakeInvoices{url: "http://shop.test/invoices/"}

		order, err := newInitiator(t, st, invoices).CreateOrder(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "http://shop.test/invoices/" + order.ID
		if order.InvoiceURL == nil || *order.InvoiceURL != want {
			t.Errorf("expected invoice %s, got %v", want, order.InvoiceURL)
		}
		got, _ := st.GetByID(ctx, order.ID)
		if got.InvoiceURL == nil || *got.InvoiceURL != want {
			t.Errorf("expected stored invoice %s, got %v", want, got.InvoiceURL)
		}
	})

	t.Run("invoice failure still creates the order", func(t *testing.T) {
		st := memstore.New()
		seedCatalog(st)
		addToCart(t, st, "u1", "lamp", domain.NoVariant(), 1)
		invoices := &fakeInvoices{err: errors.New("disk full")}

		order, err := newInitiator(t, st, invoices).CreateOrder(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if invoices.calls != 1 {
			t.Errorf("expected one emit call, got %d", invoices.calls)
		}
		if order.InvoiceURL != nil {
			t.Errorf("expected nil invoice url, got %s", *order.InvoiceURL)
		}
	})

	rejections := []struct {
		name    string
		fill    func(t *testing.T, st *memstore.Store)
		wantErr error
	}{
		{
			name:    "empty cart",
			fill:    func(*testing.T, *memstore.Store) {},
			wantErr: domain.ErrEmptyCart,
		},
		{
			name: "unknown product",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "ghost", domain.NoVariant(), 1)
			},
			wantErr: domain.ErrProductNotFound,
		},
		{
			name: "variant product without a selection",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "shirt", domain.NoVariant(), 1)
			},
			wantErr: domain.ErrVariantNotFound,
		},
		{
			name: "unknown variant",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "shirt", domain.VariantSKU("XXL"), 1)
			},
			wantErr: domain.ErrVariantNotFound,
		},
		{
			name: "more than is in stock",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "shirt", domain.VariantSKU("L"), 2)
			},
			wantErr: domain.ErrInsufficientStock,
		},
	}

	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			seedCatalog(st)
			addToCart(t, st, "u1", "lamp", domain.NoVariant(), 1)
			if tt.wantErr == domain.ErrEmptyCart {
				_ = st.Carts().Clear(ctx, "u1")
			}
			tt.fill(t, st)

			_, err := newInitiator(t, st, nil).CreateOrder(ctx, "u1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			orders, _ := st.ListByCustomer(ctx, "u1")
			if len(orders) != 0 {
				t.Errorf("expected no order, got %d", len(orders))
			}
			if tt.wantErr != domain.ErrEmptyCart {
				if items, _ := st.Carts().Items(ctx, "u1"); len(items) == 0 {
					t.Error("expected cart to be kept on rejection")
				}
			}
		})
	}
}

func TestHandler_HandleCreate(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		fill       func(t *testing.T, st *memstore.Store)
		wantStatus int
	}{
		{
			name:   "created",
			userID: "u1",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "lamp", domain.NoVariant(), 1)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty cart",
			userID:     "u1",
			fill:       func(*testing.T, *memstore.Store) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "missing product",
			userID: "u1",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "ghost", domain.NoVariant(), 1)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "not enough stock",
			userID: "u1",
			fill: func(t *testing.T, st *memstore.Store) {
				addToCart(t, st, "u1", "lamp", domain.NoVariant(), 5)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "anonymous",
			fill:       func(*testing.T, *memstore.Store) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			seedCatalog(st)
			tt.fill(t, st)
			h := NewHandler(newInitiator(t, st, nil), discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/orders", nil)
			if tt.userID != "" {
				req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: tt.userID, Role: auth.RoleUser}))
			}
			rec := httptest.NewRecorder()
			h.HandleCreate(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusCreated {
				var order domain.Order
				if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if order.CustomerID != "u1" || order.TotalAmount != 5000 {
					t.Errorf("unexpected order %+v", order)
				}
			}
		})
	}
}
