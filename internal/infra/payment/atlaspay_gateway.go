package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-credit-metering/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*AtlasPayGateway)(nil)

// AtlasPayGateway implements PaymentGateway against the AtlasPay hosted
// checkout API using direct HTTP calls.
type AtlasPayGateway struct {
	merchantID  string
	baseURL     string
	callbackURL string
	client      *http.Client
}

func NewAtlasPayGateway(merchantID, baseURL, callbackURL string) *AtlasPayGateway {
	if baseURL == "" {
		baseURL = "https://api.atlaspay.io/v1"
	}
	return &AtlasPayGateway{
		merchantID:  merchantID,
		baseURL:     baseURL,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *AtlasPayGateway) Name() string { return "atlaspay" }

// atlasPaySessionResponse represents the response from the checkout session API.
type atlasPaySessionResponse struct {
	Data struct {
		SessionID   string `json:"session_id"`
		CheckoutURL string `json:"checkout_url"`
		ExpiresAt   string `json:"expires_at"`
	} `json:"data"`
	Errors []interface{} `json:"errors"`
}

// CreateCheckoutSession implements PaymentGateway.CreateCheckoutSession.
// The order id travels in metadata so the settlement webhook can be
// correlated back even when the session id is absent from the event.
func (g *AtlasPayGateway) CreateCheckoutSession(ctx context.Context, amountCents int64, currency, orderID, description string) (*adapter.CheckoutSession, error) {
	requestData := map[string]interface{}{
		"merchant_id":  g.merchantID,
		"amount":       amountCents,
		"currency":     currency,
		"callback_url": g.callbackURL,
		"description":  description,
		"metadata": map[string]interface{}{
			"order_id": orderID,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	url := g.baseURL + "/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response atlasPaySessionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}

	if len(response.Errors) > 0 {
		errorBytes, _ := json.Marshal(response.Errors)
		return nil, fmt.Errorf("atlaspay errors: %s", string(errorBytes))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("atlaspay error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if response.Data.SessionID == "" || response.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("atlaspay error: incomplete session response: %s", string(body))
	}

	return &adapter.CheckoutSession{
		SessionID:   response.Data.SessionID,
		RedirectURL: response.Data.CheckoutURL,
	}, nil
}
