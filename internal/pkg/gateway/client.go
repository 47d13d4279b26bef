package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.paygate.example.com/v1"

	// Provider tag used for webhook event rows and payment records.
	Provider = "paygate"
)

// Order is a gateway order awaiting capture.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// MandateSubscription is a registered recurring-payment authorization.
type MandateSubscription struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	PlanRef   string `json:"plan_ref"`
	ChargeAt  int64  `json:"charge_at"`
	TotalDue  int64  `json:"total_count"`
	CreatedAt int64  `json:"created_at"`
}

// CheckoutParams is what the frontend needs to open the gateway's
// checkout UI for the token charge.
type CheckoutParams struct {
	KeyID       string `json:"key_id"`
	OrderID     string `json:"order_id"`
	MandateID   string `json:"mandate_id,omitempty"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// CreateOrderInput describes an order creation request.
type CreateOrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	MandateID   string
	Notes       map[string]string
}

// CreateMandateInput registers a recurring mandate for a plan's full price.
type CreateMandateInput struct {
	PlanCode     string
	AmountMinor  int64
	Currency     string
	CustomerRef  string
	FirstCharge  time.Time
}

// Client is the single gateway integration point. All calls are blocking
// with a bounded timeout; failures come back as apperr.ErrGateway and the
// caller decides on retries.
type Client interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	CreateMandateSubscription(ctx context.Context, in CreateMandateInput) (*MandateSubscription, error)
	CancelMandateSubscription(ctx context.Context, mandateID string) error
	GetSubscriptionStatus(ctx context.Context, mandateID string) (*MandateSubscription, error)
	VerifySignature(orderID, paymentID, signature string) bool
	CheckoutKeyID() string
}

// HTTPClient talks to the gateway's REST API with key-secret auth.
type HTTPClient struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTP *http.Client
}

// NewClientFromEnv builds the gateway client from environment configuration.
func NewClientFromEnv() *HTTPClient {
	return &HTTPClient{
		KeyID:      strings.TrimSpace(env.GetEnv("GATEWAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("GATEWAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("GATEWAY_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) CheckoutKeyID() string { return c.KeyID }

func (c *HTTPClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyCheckoutSignature(orderID, paymentID, signature, c.KeySecret)
}

func (c *HTTPClient) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.AmountMinor <= 0 {
		return nil, errors.New("order amount must be positive")
	}
	body := map[string]any{
		"amount":   in.AmountMinor,
		"currency": in.Currency,
		"receipt":  in.Receipt,
	}
	if in.MandateID != "" {
		body["mandate_id"] = in.MandateID
	}
	if len(in.Notes) > 0 {
		body["notes"] = in.Notes
	}

	var out Order
	if err := c.post(ctx, "/orders", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, apperr.Gatewayf(nil, "gateway returned order without id")
	}
	return &out, nil
}

func (c *HTTPClient) CreateMandateSubscription(ctx context.Context, in CreateMandateInput) (*MandateSubscription, error) {
	if in.AmountMinor <= 0 {
		return nil, errors.New("mandate amount must be positive")
	}
	body := map[string]any{
		"plan_ref":     in.PlanCode,
		"amount":       in.AmountMinor,
		"currency":     in.Currency,
		"customer_ref": in.CustomerRef,
		"charge_at":    in.FirstCharge.Unix(),
	}

	var out MandateSubscription
	if err := c.post(ctx, "/subscriptions", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, apperr.Gatewayf(nil, "gateway returned mandate without id")
	}
	return &out, nil
}

func (c *HTTPClient) CancelMandateSubscription(ctx context.Context, mandateID string) error {
	id := strings.TrimSpace(mandateID)
	if id == "" {
		return errors.New("mandate id is required")
	}
	return c.post(ctx, "/subscriptions/"+id+"/cancel", map[string]any{}, nil)
}

func (c *HTTPClient) GetSubscriptionStatus(ctx context.Context, mandateID string) (*MandateSubscription, error) {
	id := strings.TrimSpace(mandateID)
	if id == "" {
		return nil, errors.New("mandate id is required")
	}
	var out MandateSubscription
	if err := c.get(ctx, "/subscriptions/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("GATEWAY_KEY_ID/GATEWAY_KEY_SECRET are not configured")
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Gatewayf(err, "gateway request %s failed", req.URL.Path)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Gatewayf(
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)),
			"gateway request %s rejected", req.URL.Path,
		)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Gatewayf(err, "gateway response for %s not parseable", req.URL.Path)
	}
	return nil
}
