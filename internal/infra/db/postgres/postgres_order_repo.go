package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, number, account_id, plan_id, plan_name, plan_price_cents, plan_currency, plan_period, plan_granted_units, status, gateway_session_id, created_at, updated_at, completed_at`

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (id, number, account_id, plan_id, plan_name, plan_price_cents, plan_currency, plan_period, plan_granted_units, status, gateway_session_id, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  status=$10, gateway_session_id=$11, updated_at=$13, completed_at=$14;`

	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.Number, o.AccountID, o.PlanID, o.PlanName, o.PlanPriceCents, o.PlanCurrency, o.PlanPeriod, o.PlanGrantedUnits,
		o.Status, o.GatewaySessionID, o.CreatedAt, o.UpdatedAt, o.CompletedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *orderRepo) FindByGatewaySession(ctx context.Context, tx repository.Tx, sessionID string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE gateway_session_id=$1 LIMIT 1;`
	return r.queryOne(ctx, tx, q, sessionID)
}

// NextNumber draws from the order_numbers sequence: monotonic across all
// service instances, never an in-process counter.
func (r *orderRepo) NextNumber(ctx context.Context, tx repository.Tx) (int64, error) {
	const q = `SELECT nextval('order_numbers');`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus, completedAt *time.Time) error {
	const q = `UPDATE orders SET status=$2, completed_at=COALESCE($3, completed_at), updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, completedAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	o := &model.Order{}
	if err := row.Scan(&o.ID, &o.Number, &o.AccountID, &o.PlanID, &o.PlanName, &o.PlanPriceCents, &o.PlanCurrency, &o.PlanPeriod, &o.PlanGrantedUnits, &o.Status, &o.GatewaySessionID, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}
