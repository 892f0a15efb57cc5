package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order is the audit record of a purchase intent. Plan attributes are
// denormalized at checkout time so later catalog edits cannot rewrite
// history. Immutable once completed except for the terminal transition to
// refunded.
type Order struct {
	ID        string // ULID
	Number    string // human-readable, e.g. ORD-2026-000042
	AccountID string
	PlanID    string

	// Plan snapshot at purchase time.
	PlanName         string
	PlanPriceCents   int64
	PlanCurrency     string
	PlanPeriod       BillingPeriod
	PlanGrantedUnits int64

	Status           OrderStatus
	GatewaySessionID string // hosted checkout session, set after gateway call
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// SnapshotPlan copies the purchasable attributes of the plan onto the order.
func (o *Order) SnapshotPlan(p *Plan) {
	o.PlanID = p.ID
	o.PlanName = p.Name
	o.PlanPriceCents = p.PriceCents
	o.PlanCurrency = p.Currency
	o.PlanPeriod = p.Period
	o.PlanGrantedUnits = p.GrantedUnits
}
