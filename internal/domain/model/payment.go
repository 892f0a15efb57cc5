package model

import "time"

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded" // gateway confirmed the charge
	PaymentStatusFailed    PaymentStatus = "failed"    // gateway reported the charge failed
	PaymentStatusRefunded  PaymentStatus = "refunded"  // charge was returned; row is kept
)

// Payment is one durable record per gateway charge attempt tied to an order.
// GatewayTxnID is the idempotency key: at most one row per gateway
// transaction, enforced by a unique constraint. Rows are never deleted;
// refunds flip the status instead.
type Payment struct {
	ID           string // ULID
	OrderID      string
	AccountID    string
	Provider     string // e.g. "atlaspay"
	GatewayTxnID string
	AmountCents  int64
	Currency     string
	Status       PaymentStatus
	Meta         map[string]interface{} // gateway audit blob, JSONB in DB
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
