// Package notify delivers customer emails through the email service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPMailer(baseURL string, client *http.Client) *HTTPMailer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMailer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

// Sender is a transport that delivers one message directly, such as the
// email service's SMTP sender.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DirectMailer hands messages to a Sender in process, for deployments
// without a separate email service.
type DirectMailer struct {
	sender Sender
}

func NewDirectMailer(sender Sender) *DirectMailer {
	return &DirectMailer{sender: sender}
}

func (m *DirectMailer) Send(ctx context.Context, msg Message) error {
	return m.sender.Send(ctx, msg.To, msg.Subject, msg.Body)
}
