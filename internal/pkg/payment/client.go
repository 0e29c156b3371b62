package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propertyguard/backend/internal/pkg/entitlement"
	"github.com/propertyguard/backend/internal/pkg/env"
)

const defaultPaymentAPIBaseURL = "https://api.payments.propertyguard.io/v1"

// Client talks to the external payment collaborator. It never touches
// subscription state; the entitlement engine charges first and writes only
// after a confirmed success.
type Client struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a payment client from PAYMENT_API_KEY and
// PAYMENT_API_BASE_URL.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("PAYMENT_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYMENT_API_BASE_URL", defaultPaymentAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type chargeRequest struct {
	PaymentMethod  string  `json:"payment_method"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type chargeResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// Charge submits a charge against a stored payment method. Declines come
// back as a non-success result; transport and timeout failures as errors.
func (c *Client) Charge(ctx context.Context, paymentMethodRef string, amount float64, currency string) (*entitlement.ChargeResult, error) {
	payload, err := json.Marshal(chargeRequest{
		PaymentMethod:  paymentMethodRef,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("payment api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chargeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("payment api returned unparsable body: %w", err)
	}

	// Client errors (card declined etc.) are reported in-band so the engine
	// can surface a payment failure rather than a transport fault.
	return &entitlement.ChargeResult{
		Success:       parsed.Success && resp.StatusCode < 300,
		Reason:        parsed.Reason,
		TransactionID: parsed.TransactionID,
	}, nil
}
