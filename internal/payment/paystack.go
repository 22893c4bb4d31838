package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	PaystackSignatureHeader = "X-Paystack-Signature"
	defaultPaystackBaseURL  = "https://api.paystack.co"
)

// Paystack talks to the Paystack REST API. Amounts are sent as-is because
// the ledger already stores minor units.
type Paystack struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystack(secretKey, baseURL string, client *http.Client) *Paystack {
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Paystack{
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (p *Paystack) Name() string { return "paystack" }

type paystackInitRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) Initialize(ctx context.Context, charge Charge) (*Authorization, error) {
	body, err := json.Marshal(paystackInitRequest{
		Email:       charge.Email,
		Amount:      charge.Amount,
		Reference:   charge.Reference,
		Currency:    strings.ToUpper(charge.Currency),
		CallbackURL: charge.CallbackURL,
		Metadata:    map[string]string{"order_id": charge.OrderID},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	if err := p.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}

	ref := data.Reference
	if ref == "" {
		ref = charge.Reference
	}
	return &Authorization{URL: data.AuthorizationURL, Reference: ref}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (Event, error) {
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}
	if err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return Event{}, err
	}

	ev := Event{Reference: reference, Name: "verify." + data.Status, Amount: data.Amount}
	switch data.Status {
	case "success":
		ev.Type = EventChargeSucceeded
	case "failed":
		ev.Type = EventChargeFailed
	default:
		ev.Type = EventUnknown
	}
	return ev, nil
}

func (p *Paystack) call(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: paystack %s: %v", ErrGateway, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: paystack %s returned status %d with unreadable body", ErrGateway, path, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || !env.Status {
		return fmt.Errorf("%w: paystack %s returned status %d: %s", ErrGateway, path, resp.StatusCode, env.Message)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: paystack %s: decode data: %v", ErrGateway, path, err)
	}
	return nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// ParseEvent checks the HMAC-SHA512 of the raw body against the signature
// header before looking at the payload.
func (p *Paystack) ParseEvent(payload []byte, header http.Header) (Event, error) {
	if !p.validSignature(payload, header.Get(PaystackSignatureHeader)) {
		return Event{}, ErrInvalidSignature
	}

	var raw paystackEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := Event{Name: raw.Event, Reference: raw.Data.Reference, Amount: raw.Data.Amount}
	switch raw.Event {
	case "charge.success":
		ev.Type = EventChargeSucceeded
	case "charge.failed":
		ev.Type = EventChargeFailed
	default:
		ev.Type = EventUnknown
		return ev, nil
	}

	if ev.Reference == "" {
		return Event{}, fmt.Errorf("%w: %s without reference", ErrMalformedEvent, raw.Event)
	}
	return ev, nil
}

func (p *Paystack) validSignature(payload []byte, signature string) bool {
	if signature == "" || p.secretKey == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, SignPaystack(p.secretKey, payload))
}

// SignPaystack returns the raw HMAC-SHA512 Paystack computes over a payload.
func SignPaystack(secretKey string, payload []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(payload)
	return mac.Sum(nil)
}
