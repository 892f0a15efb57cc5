package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

// entitlementRepo relies on a partial unique index
// (account_id) WHERE status='active' so the one-active-per-account invariant
// holds even if two grants race past the advisory lock.
type entitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const entitlementColumns = `id, account_id, plan_id, status, start_at, end_at, used, last_reset, cancelled_at, created_at`

func (r *entitlementRepo) Save(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = `
INSERT INTO entitlements (id, account_id, plan_id, status, start_at, end_at, used, last_reset, cancelled_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  status=$4, start_at=$5, end_at=$6, used=$7, last_reset=$8, cancelled_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.AccountID, e.PlanID, e.Status, e.StartAt, e.EndAt, e.Used, e.LastReset, e.CancelledAt, e.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *entitlementRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Entitlement, error) {
	const q = `SELECT ` + entitlementColumns + ` FROM entitlements WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *entitlementRepo) FindActiveByAccount(ctx context.Context, tx repository.Tx, accountID string) (*model.Entitlement, error) {
	const q = `
SELECT ` + entitlementColumns + `
  FROM entitlements
 WHERE account_id=$1 AND status='active' AND (end_at IS NULL OR end_at > NOW())
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, accountID)
}

func (r *entitlementRepo) FindActiveByAccountAndPlan(ctx context.Context, tx repository.Tx, accountID, planID string) (*model.Entitlement, error) {
	const q = `
SELECT ` + entitlementColumns + `
  FROM entitlements
 WHERE account_id=$1 AND plan_id=$2 AND status='active' AND (end_at IS NULL OR end_at > NOW())
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, accountID, planID)
}

// IncrementUsage is the single atomic deduction statement; never a
// read-modify-write from the application layer.
func (r *entitlementRepo) IncrementUsage(ctx context.Context, tx repository.Tx, entitlementID string, units int64) error {
	const q = `UPDATE entitlements SET used = used + $2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, entitlementID, units)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *entitlementRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.EntitlementStatus, cancelledAt *time.Time) error {
	const q = `UPDATE entitlements SET status=$2, cancelled_at=COALESCE($3, cancelled_at) WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, cancelledAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *entitlementRepo) ExtendEnd(ctx context.Context, tx repository.Tx, id string, by time.Duration) error {
	const q = `
UPDATE entitlements
   SET end_at = GREATEST(COALESCE(end_at, NOW()), NOW()) + $2::interval
 WHERE id=$1 AND status='active';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, by)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetAllDue is one conditional statement: the last_reset predicate makes an
// immediate second sweep a no-op, and the sweep is safe to run concurrently
// with admission checks.
func (r *entitlementRepo) ResetAllDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE entitlements e
   SET used = 0, last_reset = $1
  FROM plans p
 WHERE p.id = e.plan_id
   AND e.status = 'active'
   AND e.last_reset <= $1 - (CASE p.period WHEN 'annual' THEN INTERVAL '365 days' ELSE INTERVAL '30 days' END);`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func (r *entitlementRepo) MarkExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	const q = `
UPDATE entitlements
   SET status='expired'
 WHERE status='active' AND end_at IS NOT NULL AND end_at <= $1
RETURNING account_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var accounts []string
	for rows.Next() {
		var acct string
		if err := rows.Scan(&acct); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return accounts, nil
}

func (r *entitlementRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, accountID string, now time.Time) error {
	const q = `
UPDATE entitlements
   SET status='expired'
 WHERE account_id=$1 AND status='active' AND end_at IS NOT NULL AND end_at <= $2;`
	if _, err := execSQL(ctx, r.pool, tx, q, accountID, now); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *entitlementRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Entitlement, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	e := &model.Entitlement{}
	if err := row.Scan(&e.ID, &e.AccountID, &e.PlanID, &e.Status, &e.StartAt, &e.EndAt, &e.Used, &e.LastReset, &e.CancelledAt, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}
