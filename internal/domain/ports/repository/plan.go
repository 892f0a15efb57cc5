package repository

import (
	"context"

	"ai-credit-metering/internal/domain/model"
)

// PlanRepository is the durable plan catalog.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	// FindDefault returns the single plan flagged is_default.
	FindDefault(ctx context.Context, tx Tx) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
	// Deactivate soft-deletes a plan; existing entitlements keep referencing it.
	Deactivate(ctx context.Context, tx Tx, id string) error
}
