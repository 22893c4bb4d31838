package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
)

type recordingSender struct {
	to, subject, body string
	err               error
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleSend(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
	}{
		{name: "sent", body: `{"to":"ada@example.com","subject":"Hi","body":"Hello"}`, wantStatus: http.StatusOK},
		{name: "missing recipient", body: `{"subject":"Hi"}`, wantStatus: http.StatusBadRequest},
		{name: "bad body", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "relay failure", body: `{"to":"ada@example.com"}`, sendErr: errors.New("refused"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{err: tt.sendErr}
			rec := httptest.NewRecorder()
			NewHandler(sender, discardLogger()).HandleSend(rec,
				httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && sender.to != "ada@example.com" {
				t.Errorf("expected delivery to ada@example.com, got %q", sender.to)
			}
		})
	}
}

func TestSMTPSender_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s := NewSMTPSender(SMTPConfig{Host: "mail.example", Port: 2525, From: "shop@example.com"})
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := s.Send(context.Background(), "ada@example.com", "Receipt\nInjected: x", "Thanks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "mail.example:2525" {
		t.Errorf("unexpected addr %s", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Receipt Injected: x\r\n") {
		t.Errorf("subject header not sanitized: %q", gotMsg)
	}
	if !strings.HasSuffix(gotMsg, "\r\n\r\nThanks") {
		t.Errorf("unexpected body in %q", gotMsg)
	}
}
