package repository

import (
	"context"
	"time"

	"ai-credit-metering/internal/domain/model"
)

// EntitlementRepository is the single source of truth for account grants.
// Counter mutations are expressed as single atomic statements on the store,
// never as application-level read-modify-write round trips.
type EntitlementRepository interface {
	Save(ctx context.Context, tx Tx, e *model.Entitlement) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Entitlement, error)
	// FindActiveByAccount selects the record whose status is active and whose
	// end is null or in the future. ErrNotFound when none.
	FindActiveByAccount(ctx context.Context, tx Tx, accountID string) (*model.Entitlement, error)
	FindActiveByAccountAndPlan(ctx context.Context, tx Tx, accountID, planID string) (*model.Entitlement, error)

	// IncrementUsage is an atomic `used = used + units`; safe for many
	// concurrent callers on the same row.
	IncrementUsage(ctx context.Context, tx Tx, entitlementID string, units int64) error

	// UpdateStatus transitions an entitlement; cancelledAt is recorded for
	// cancellations and ignored otherwise.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.EntitlementStatus, cancelledAt *time.Time) error

	// ExtendEnd pushes the end timestamp of an active entitlement out by the
	// given duration (renewal of the same plan).
	ExtendEnd(ctx context.Context, tx Tx, id string, by time.Duration) error

	// ResetAllDue zeroes the usage counter and stamps last_reset for every
	// active entitlement whose last reset is older than its plan's period.
	// Conditional on last_reset, so an immediate second sweep is a no-op.
	// Returns the number of rows reset.
	ResetAllDue(ctx context.Context, tx Tx, now time.Time) (int, error)

	// MarkExpired flips active entitlements whose end has passed to expired
	// and returns the affected account ids so callers can re-bootstrap them.
	MarkExpired(ctx context.Context, tx Tx, now time.Time) ([]string, error)

	// ExpireOverdue flips one account's active-but-past-end row to expired.
	// Such a row is invisible to FindActiveByAccount yet still occupies the
	// one-active-per-account slot until the periodic sweep runs; grants call
	// this first so a fresh entitlement can take the slot. No-op when the
	// account has no overdue row.
	ExpireOverdue(ctx context.Context, tx Tx, accountID string, now time.Time) error
}
