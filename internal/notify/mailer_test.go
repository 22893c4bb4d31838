package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMailer_Send(t *testing.T) {
	t.Run("posts the message", func(t *testing.T) {
		var got Message
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/send" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		msg := Message{To: "ada@example.com", Subject: "Receipt", Body: "Thanks"}
		if err := NewHTTPMailer(srv.URL+"/", srv.Client()).Send(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != msg {
			t.Errorf("expected %+v, got %+v", msg, got)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		if err := NewHTTPMailer(srv.URL, srv.Client()).Send(context.Background(), Message{To: "x@example.com"}); err == nil {
			t.Error("expected an error")
		}
	})
}

type senderFunc func(ctx context.Context, to, subject, body string) error

func (f senderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

func TestDirectMailer_Send(t *testing.T) {
	var got []string
	m := NewDirectMailer(senderFunc(func(_ context.Context, to, subject, body string) error {
		got = []string{to, subject, body}
		return nil
	}))

	if err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "s", Body: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != "a@example.com" || got[1] != "s" || got[2] != "b" {
		t.Errorf("unexpected delivery %v", got)
	}
}
