package model

import "time"

// GatewayEventKind is the closed set of webhook notification kinds the
// reconciler dispatches on. Anything the gateway sends outside this set maps
// to GatewayEventUnknown and is acknowledged without error.
type GatewayEventKind string

const (
	GatewayEventCheckoutCompleted GatewayEventKind = "checkout.completed"
	GatewayEventChargeSucceeded   GatewayEventKind = "charge.succeeded"
	GatewayEventChargeFailed      GatewayEventKind = "charge.failed"
	GatewayEventChargeRefunded    GatewayEventKind = "charge.refunded"
	GatewayEventUnknown           GatewayEventKind = "unknown"
)

// KindFromWire maps the gateway's type string onto the closed kind set.
func KindFromWire(s string) GatewayEventKind {
	switch GatewayEventKind(s) {
	case GatewayEventCheckoutCompleted, GatewayEventChargeSucceeded,
		GatewayEventChargeFailed, GatewayEventChargeRefunded:
		return GatewayEventKind(s)
	default:
		return GatewayEventUnknown
	}
}

// GatewayEvent is a parsed, verified gateway notification. It is not
// persisted as its own table; TxnID doubles as the idempotency key for the
// payment insert.
type GatewayEvent struct {
	ID        string // gateway-assigned event id
	Kind      GatewayEventKind
	WireType  string // raw type string as sent, kept for logging unknowns
	TxnID     string // gateway transaction id
	SessionID string // hosted checkout session id
	OrderID   string // our correlation tag set at checkout

	AmountCents   int64
	Currency      string
	FailureReason string
	Meta          map[string]interface{}
	OccurredAt    time.Time
}
