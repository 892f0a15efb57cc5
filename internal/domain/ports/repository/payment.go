package repository

import (
	"context"

	"ai-credit-metering/internal/domain/model"
)

// PaymentRepository stores one row per gateway charge attempt.
type PaymentRepository interface {
	// InsertIfAbsent atomically inserts the payment unless a row with the
	// same (provider, gateway_txn_id) already exists. Returns false when the
	// row was already there; this is the reconciler's idempotency gate.
	InsertIfAbsent(ctx context.Context, tx Tx, p *model.Payment) (bool, error)
	FindByGatewayTxnID(ctx context.Context, tx Tx, provider, txnID string) (*model.Payment, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PaymentStatus, meta map[string]interface{}) error
}
