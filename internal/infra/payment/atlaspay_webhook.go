package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/adapter"
)

var _ adapter.WebhookCodec = (*AtlasPayWebhookCodec)(nil)

// AtlasPayWebhookCodec verifies and decodes AtlasPay webhook deliveries.
// The signature is HMAC-SHA256 over the raw request body, hex encoded, sent
// in the X-AtlasPay-Signature header.
type AtlasPayWebhookCodec struct {
	secret []byte
}

func NewAtlasPayWebhookCodec(secret string) *AtlasPayWebhookCodec {
	return &AtlasPayWebhookCodec{secret: []byte(secret)}
}

// VerifySignature computes the expected MAC over the exact bytes received.
// Comparison is constant time.
func (c *AtlasPayWebhookCodec) VerifySignature(payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, c.secret)
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), sig)
}

// atlasPayEvent is the wire shape of an AtlasPay webhook delivery.
type atlasPayEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Data      struct {
		TransactionID string                 `json:"transaction_id"`
		SessionID     string                 `json:"session_id"`
		Amount        int64                  `json:"amount"`
		Currency      string                 `json:"currency"`
		FailureReason string                 `json:"failure_reason"`
		Metadata      map[string]interface{} `json:"metadata"`
	} `json:"data"`
}

// ParseEvent decodes a verified payload into a GatewayEvent.
func (c *AtlasPayWebhookCodec) ParseEvent(payload []byte) (*model.GatewayEvent, error) {
	var wire atlasPayEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}
	if wire.Data.TransactionID == "" {
		return nil, fmt.Errorf("webhook payload missing transaction_id")
	}

	orderID := ""
	if v, ok := wire.Data.Metadata["order_id"].(string); ok {
		orderID = v
	}

	occurred := time.Now().UTC()
	if wire.CreatedAt > 0 {
		occurred = time.Unix(wire.CreatedAt, 0).UTC()
	}

	return &model.GatewayEvent{
		ID:            wire.ID,
		Kind:          model.KindFromWire(wire.Type),
		WireType:      wire.Type,
		TxnID:         wire.Data.TransactionID,
		SessionID:     wire.Data.SessionID,
		OrderID:       orderID,
		AmountCents:   wire.Data.Amount,
		Currency:      wire.Data.Currency,
		FailureReason: wire.Data.FailureReason,
		Meta:          wire.Data.Metadata,
		OccurredAt:    occurred,
	}, nil
}
