package adapter

import "context"

// CheckoutSession is the hosted checkout artifact the gateway returns; the
// caller redirects the user to RedirectURL and we correlate the later
// webhook via SessionID / the order id tag.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// PaymentGateway abstracts the external payment provider. Only session
// creation is in scope; settlement arrives asynchronously via webhooks.
type PaymentGateway interface {
	Name() string
	// CreateCheckoutSession creates a hosted checkout tagged with our order
	// id so gateway notifications can be correlated back.
	CreateCheckoutSession(ctx context.Context, amountCents int64, currency, orderID, description string) (*CheckoutSession, error)
}
