package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
	"github.com/Druid-alpha/shoplux-BE/internal/store/memstore"
)

type fakeGateway struct {
	charges []Charge
	err     error
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Initialize(_ context.Context, charge Charge) (*Authorization, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.charges = append(g.charges, charge)
	return &Authorization{URL: "https://pay.example/" + charge.Reference, Reference: charge.Reference}, nil
}

func (g *fakeGateway) ParseEvent([]byte, http.Header) (Event, error) { return Event{}, nil }

func (g *fakeGateway) Verify(context.Context, string) (Event, error) { return Event{}, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedOrder(t *testing.T, st *memstore.Store, customerID string, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := domain.NewOrder(customerID, []domain.OrderLine{
		{ProductID: "p1", Title: "Lamp", Quantity: 2, PriceAtPurchase: 5000},
	}, time.Now().UTC())
	order.Status = status

	err := st.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestInitiator_Initiate(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)

	t.Run("persists the reference and returns the redirect", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)
		gw := &fakeGateway{}

		i := NewInitiator(st, gw, discardLogger(), WithClock(func() time.Time { return fixed }), WithCurrency("NGN"))
		authz, err := i.Initiate(context.Background(), "user-1", order.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantRef := "ORD_" + order.ID + "_1700000000000"
		if authz.Reference != wantRef {
			t.Errorf("expected reference %s, got %s", wantRef, authz.Reference)
		}
		if len(gw.charges) != 1 || gw.charges[0].Amount != 10000 || gw.charges[0].Email != "ada@example.com" {
			t.Errorf("unexpected charges %+v", gw.charges)
		}

		stored, _ := st.GetByID(context.Background(), order.ID)
		if stored.PaymentRef != wantRef {
			t.Errorf("expected stored ref %s, got %q", wantRef, stored.PaymentRef)
		}
	})

	t.Run("rejects another user's order", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)
		gw := &fakeGateway{}

		_, err := NewInitiator(st, gw, discardLogger()).Initiate(context.Background(), "user-2", order.ID)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if len(gw.charges) != 0 {
			t.Error("gateway must not be called")
		}
	})

	t.Run("rejects a settled order", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPaid)

		_, err := NewInitiator(st, &fakeGateway{}, discardLogger()).Initiate(context.Background(), "user-1", order.ID)
		if !errors.Is(err, domain.ErrOrderNotPending) {
			t.Errorf("expected ErrOrderNotPending, got %v", err)
		}
	})

	t.Run("requires a customer email", func(t *testing.T) {
		st := memstore.New()
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)

		_, err := NewInitiator(st, &fakeGateway{}, discardLogger()).Initiate(context.Background(), "user-1", order.ID)
		if !errors.Is(err, domain.ErrMissingEmail) {
			t.Errorf("expected ErrMissingEmail, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := NewInitiator(memstore.New(), &fakeGateway{}, discardLogger()).Initiate(context.Background(), "user-1", "missing")
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("gateway failure is reported as a gateway error", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)

		_, err := NewInitiator(st, &fakeGateway{err: errors.New("boom")}, discardLogger()).Initiate(context.Background(), "user-1", order.ID)
		if !errors.Is(err, ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})

	t.Run("a retry keeps the first reference resolvable", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)

		clock := fixed
		i := NewInitiator(st, &fakeGateway{}, discardLogger(), WithClock(func() time.Time { return clock }))
		first, err := i.Initiate(context.Background(), "user-1", order.ID)
		if err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		clock = clock.Add(time.Second)
		second, err := i.Initiate(context.Background(), "user-1", order.ID)
		if err != nil {
			t.Fatalf("second attempt: %v", err)
		}

		if first.Reference == second.Reference {
			t.Fatal("expected a fresh reference")
		}
		stored, _ := st.GetByID(context.Background(), order.ID)
		if stored.PaymentRef != second.Reference {
			t.Errorf("expected latest reference to be current, got %s", stored.PaymentRef)
		}

		err = st.Atomically(context.Background(), func(ctx context.Context, tx store.Tx) error {
			o, err := tx.OrderByPaymentRef(ctx, first.Reference)
			if err != nil {
				return err
			}
			if o.ID != order.ID {
				t.Errorf("expected first reference to resolve to %s, got %s", order.ID, o.ID)
			}
			return nil
		})
		if err != nil {
			t.Errorf("first reference no longer resolves: %v", err)
		}
	})
}

func TestHandler_HandleInit(t *testing.T) {
	newRequest := func(userID, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/payments/init", strings.NewReader(body))
		if userID != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: userID, Role: auth.RoleUser}))
		}
		return req
	}

	t.Run("returns the authorization", func(t *testing.T) {
		st := memstore.New()
		st.AddUser("user-1", "ada@example.com")
		order := seedOrder(t, st, "user-1", domain.OrderStatusPending)
		handler := NewHandler(NewInitiator(st, &fakeGateway{}, discardLogger()), discardLogger())

		rec := httptest.NewRecorder()
		handler.HandleInit(rec, newRequest("user-1", `{"order_id":"`+order.ID+`"}`))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body Authorization
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.URL == "" || !strings.HasPrefix(body.Reference, "ORD_"+order.ID+"_") {
			t.Errorf("unexpected body %+v", body)
		}
	})

	cases := []struct {
		name   string
		userID string
		body   string
		status domain.OrderStatus
		gwErr  error
		want   int
	}{
		{name: "unauthenticated", body: `{}`, want: http.StatusUnauthorized},
		{name: "missing order id", userID: "user-1", body: `{}`, want: http.StatusBadRequest},
		{name: "invalid json", userID: "user-1", body: `{`, want: http.StatusBadRequest},
		{name: "foreign order", userID: "user-2", status: domain.OrderStatusPending, want: http.StatusForbidden},
		{name: "already paid", userID: "user-1", status: domain.OrderStatusPaid, want: http.StatusConflict},
		{name: "gateway down", userID: "user-1", status: domain.OrderStatusPending, gwErr: errors.New("down"), want: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := memstore.New()
			st.AddUser("user-1", "ada@example.com")
			body := tc.body
			if tc.status != "" {
				order := seedOrder(t, st, "user-1", tc.status)
				body = `{"order_id":"` + order.ID + `"}`
			}
			handler := NewHandler(NewInitiator(st, &fakeGateway{err: tc.gwErr}, discardLogger()), discardLogger())

			rec := httptest.NewRecorder()
			handler.HandleInit(rec, newRequest(tc.userID, body))

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
