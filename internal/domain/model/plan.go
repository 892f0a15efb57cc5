package model

import (
	"time"

	"ai-credit-metering/internal/domain"
)

type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodAnnual  BillingPeriod = "annual"
	BillingPeriodNone    BillingPeriod = "none"
)

// Plan is an immutable catalog entry. Administrators create and edit plans;
// user activity never mutates them. Exactly one plan carries IsDefault=true:
// the zero-price plan every account falls back to.
type Plan struct {
	ID           string // UUID
	Name         string
	PriceCents   int64
	Currency     string
	Period       BillingPeriod
	GrantedUnits int64 // raw consumption units per period
	IsDefault    bool
	Active       bool
	CreatedAt    time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// Purchasable reports whether the plan can go through checkout.
// The default plan is granted, never bought.
func (p *Plan) Purchasable() bool {
	return p != nil && p.Active && !p.IsDefault && p.PriceCents > 0
}

// PeriodDuration is the plan's usage-reset cadence. Plans with no billing
// period still refresh their grant monthly.
func (p *Plan) PeriodDuration() time.Duration {
	switch p.Period {
	case BillingPeriodAnnual:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// EntitlementHorizon is how far ahead a fresh entitlement's end timestamp is
// placed: one billing period, or an effectively unbounded 100 years for
// plans with no billing period.
func (p *Plan) EntitlementHorizon() time.Duration {
	if p.Period == BillingPeriodNone {
		return 100 * 365 * 24 * time.Hour
	}
	return p.PeriodDuration()
}

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, priceCents int64, currency string, period BillingPeriod, grantedUnits int64, isDefault bool) (*Plan, error) {
	if id == "" || name == "" || grantedUnits < 0 || priceCents < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if isDefault && priceCents != 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch period {
	case BillingPeriodMonthly, BillingPeriodAnnual, BillingPeriodNone:
	default:
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "USD"
	}
	return &Plan{
		ID:           id,
		Name:         name,
		PriceCents:   priceCents,
		Currency:     currency,
		Period:       period,
		GrantedUnits: grantedUnits,
		IsDefault:    isDefault,
		Active:       true,
		CreatedAt:    time.Now(),
	}, nil
}
