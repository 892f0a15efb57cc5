package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, account_id, provider, gateway_txn_id, amount_cents, currency, status, meta, created_at, updated_at`

// InsertIfAbsent is the idempotency gate: the unique index on
// (provider, gateway_txn_id) plus ON CONFLICT DO NOTHING makes the existence
// check and the insert one atomic statement. Two concurrent deliveries of
// the same transaction id resolve to exactly one row.
func (r *paymentRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO payments (id, order_id, account_id, provider, gateway_txn_id, amount_cents, currency, status, meta, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (provider, gateway_txn_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.OrderID, p.AccountID, p.Provider, p.GatewayTxnID, p.AmountCents, p.Currency, p.Status, p.Meta, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) FindByGatewayTxnID(ctx context.Context, tx repository.Tx, provider, txnID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND gateway_txn_id=$2 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, provider, txnID)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, meta map[string]interface{}) error {
	const q = `UPDATE payments SET status=$2, meta=COALESCE($3, meta), updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, meta)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.OrderID, &p.AccountID, &p.Provider, &p.GatewayTxnID, &p.AmountCents, &p.Currency, &p.Status, &p.Meta, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
