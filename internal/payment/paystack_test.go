package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func signedPaystackHeader(secret string, payload []byte) http.Header {
	h := http.Header{}
	h.Set(PaystackSignatureHeader, hex.EncodeToString(SignPaystack(secret, payload)))
	return h
}

func TestPaystack_ParseEvent(t *testing.T) {
	p := NewPaystack("sk_test", "", nil)

	t.Run("charge.success with a valid signature", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"ORD_1_1700000000000","amount":10000}}`)

		ev, err := p.ParseEvent(payload, signedPaystackHeader("sk_test", payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventChargeSucceeded {
			t.Errorf("expected %s, got %s", EventChargeSucceeded, ev.Type)
		}
		if ev.Reference != "ORD_1_1700000000000" || ev.Amount != 10000 {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("charge.failed", func(t *testing.T) {
		payload := []byte(`{"event":"charge.failed","data":{"reference":"ref-2"}}`)

		ev, err := p.ParseEvent(payload, signedPaystackHeader("sk_test", payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventChargeFailed || ev.Reference != "ref-2" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("unrecognized events are passed through as unknown", func(t *testing.T) {
		payload := []byte(`{"event":"transfer.success","data":{}}`)

		ev, err := p.ParseEvent(payload, signedPaystackHeader("sk_test", payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventUnknown || ev.Name != "transfer.success" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
		header := signedPaystackHeader("sk_test", payload)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"ref-9"}}`)

		if _, err := p.ParseEvent(tampered, header); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

		if _, err := p.ParseEvent(payload, signedPaystackHeader("sk_other", payload)); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("missing or non-hex signature", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

		if _, err := p.ParseEvent(payload, http.Header{}); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature for missing header, got %v", err)
		}
		h := http.Header{}
		h.Set(PaystackSignatureHeader, "not-hex")
		if _, err := p.ParseEvent(payload, h); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature for garbage header, got %v", err)
		}
	})

	t.Run("signed but malformed", func(t *testing.T) {
		payload := []byte(`{"event":`)

		if _, err := p.ParseEvent(payload, signedPaystackHeader("sk_test", payload)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("expected ErrMalformedEvent, got %v", err)
		}
	})

	t.Run("charge without reference", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{}}`)

		if _, err := p.ParseEvent(payload, signedPaystackHeader("sk_test", payload)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("expected ErrMalformedEvent, got %v", err)
		}
	})
}

func TestPaystack_Initialize(t *testing.T) {
	t.Run("posts the charge and returns the authorization url", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/transaction/initialize" {
				t.Errorf("expected /transaction/initialize, got %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
				t.Errorf("unexpected authorization header %q", got)
			}

			var body paystackInitRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.Amount != 10000 || body.Email != "ada@example.com" || body.Reference != "ORD_o1_1" {
				t.Errorf("unexpected body %+v", body)
			}
			if body.Metadata["order_id"] != "o1" {
				t.Errorf("expected order_id metadata, got %v", body.Metadata)
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","reference":"ORD_o1_1"}}`))
		}))
		defer server.Close()

		p := NewPaystack("sk_test", server.URL, server.Client())
		auth, err := p.Initialize(context.Background(), Charge{
			OrderID: "o1", Reference: "ORD_o1_1", Email: "ada@example.com", Amount: 10000, Currency: "ngn",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if auth.URL != "https://checkout.paystack.com/abc" || auth.Reference != "ORD_o1_1" {
			t.Errorf("unexpected authorization %+v", auth)
		}
	})

	t.Run("provider rejection is a gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":false,"message":"Duplicate Transaction Reference"}`))
		}))
		defer server.Close()

		p := NewPaystack("sk_test", server.URL, server.Client())
		_, err := p.Initialize(context.Background(), Charge{OrderID: "o1", Reference: "r", Email: "a@b.c", Amount: 1})
		if !errors.Is(err, ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})

	t.Run("unreachable provider is a gateway error", func(t *testing.T) {
		p := NewPaystack("sk_test", "http://localhost:99999", &http.Client{})
		_, err := p.Initialize(context.Background(), Charge{OrderID: "o1", Reference: "r", Email: "a@b.c", Amount: 1})
		if !errors.Is(err, ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})
}

func TestPaystack_Verify(t *testing.T) {
	statuses := map[string]EventType{
		"success":   EventChargeSucceeded,
		"failed":    EventChargeFailed,
		"abandoned": EventUnknown,
	}

	for status, want := range statuses {
		t.Run(status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction/verify/ORD_o1_1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"` + status + `","reference":"ORD_o1_1","amount":500}}`))
			}))
			defer server.Close()

			ev, err := NewPaystack("sk_test", server.URL, server.Client()).Verify(context.Background(), "ORD_o1_1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type != want || ev.Reference != "ORD_o1_1" {
				t.Errorf("expected %s for %s, got %+v", want, status, ev)
			}
		})
	}
}
