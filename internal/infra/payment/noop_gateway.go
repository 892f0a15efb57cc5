package payment

import (
	"context"
	"fmt"
	"sync"

	"ai-credit-metering/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway for local development and
// tests. Sessions are handed out sequentially and never settle on their own.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]string // session id -> order id
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		sessions: make(map[string]string),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreateCheckoutSession(ctx context.Context, amountCents int64, currency, orderID, description string) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	sessionID := fmt.Sprintf("noop-sess-%d", g.seq)
	g.sessions[sessionID] = orderID
	return &adapter.CheckoutSession{
		SessionID:   sessionID,
		RedirectURL: "https://example.test/checkout/" + sessionID,
	}, nil
}

// OrderFor reports the order a session was opened for; used by tests.
func (g *NoopPaymentGateway) OrderFor(sessionID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.sessions[sessionID]
	return id, ok
}
