package model

import (
	"time"

	"ai-credit-metering/internal/domain"
)

type EntitlementStatus string

const (
	EntitlementStatusActive    EntitlementStatus = "active"
	EntitlementStatusCancelled EntitlementStatus = "cancelled"
	EntitlementStatusExpired   EntitlementStatus = "expired"
)

// Entitlement is the live grant for one account: which plan it is on, the
// period boundaries, and the running usage counter in raw consumption units.
// Invariant: at most one entitlement per account has status active at any
// instant.
type Entitlement struct {
	ID          string // UUID
	AccountID   string // opaque, supplied by the auth system
	PlanID      string // UUID of plan
	Status      EntitlementStatus
	StartAt     time.Time
	EndAt       *time.Time // nil = unbounded
	Used        int64      // raw units consumed this period; may overdraw slightly
	LastReset   time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// NewEntitlement creates a fresh active entitlement on the given plan with
// zero usage. The end timestamp is one billing period out, or the 100-year
// horizon for plans without one.
func NewEntitlement(id, accountID string, plan *Plan) (*Entitlement, error) {
	if id == "" || accountID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	end := now.Add(plan.EntitlementHorizon())
	return &Entitlement{
		ID:        id,
		AccountID: accountID,
		PlanID:    plan.ID,
		Status:    EntitlementStatusActive,
		StartAt:   now,
		EndAt:     &end,
		Used:      0,
		LastReset: now,
		CreatedAt: now,
	}, nil
}

// Remaining is the displayable raw-unit balance: never negative even when the
// post-hoc deduction pushed Used past the grant.
func (e *Entitlement) Remaining(plan *Plan) int64 {
	if e == nil || plan.IsZero() {
		return 0
	}
	if r := plan.GrantedUnits - e.Used; r > 0 {
		return r
	}
	return 0
}

// ResetDue reports whether the periodic sweep should zero this entitlement's
// usage counter: active, and LastReset older than one plan period.
func (e *Entitlement) ResetDue(plan *Plan, now time.Time) bool {
	if e == nil || e.Status != EntitlementStatusActive || plan.IsZero() {
		return false
	}
	return now.Sub(e.LastReset) >= plan.PeriodDuration()
}
