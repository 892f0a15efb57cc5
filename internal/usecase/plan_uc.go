package usecase

import (
	"context"

	"github.com/google/uuid"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
)

// PlanUseCase manages the plan catalog.
type PlanUseCase interface {
	Create(ctx context.Context, name string, priceCents int64, currency string, period model.BillingPeriod, grantedUnits int64, isDefault bool) (*model.Plan, error)
	Get(ctx context.Context, id string) (*model.Plan, error)
	// ListActive is the account-facing catalog listing.
	ListActive(ctx context.Context) ([]*model.Plan, error)
	ListAll(ctx context.Context) ([]*model.Plan, error)
	// Deactivate soft-deletes; existing entitlements keep their reference.
	Deactivate(ctx context.Context, id string) error
}

var _ PlanUseCase = (*planUC)(nil)

type planUC struct {
	repo repository.PlanRepository
}

func NewPlanUseCase(repo repository.PlanRepository) *planUC {
	return &planUC{repo: repo}
}

func (uc *planUC) Create(ctx context.Context, name string, priceCents int64, currency string, period model.BillingPeriod, grantedUnits int64, isDefault bool) (*model.Plan, error) {
	// One default plan only; it is set at catalog-seeding time.
	if isDefault {
		if existing, err := uc.repo.FindDefault(ctx, repository.NoTX); err == nil && existing != nil {
			return nil, domain.ErrAlreadyExists
		}
	}
	p, err := model.NewPlan(uuid.NewString(), name, priceCents, currency, period, grantedUnits, isDefault)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *planUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

func (uc *planUC) ListActive(ctx context.Context) ([]*model.Plan, error) {
	return uc.repo.ListActive(ctx, repository.NoTX)
}

func (uc *planUC) ListAll(ctx context.Context) ([]*model.Plan, error) {
	return uc.repo.ListAll(ctx, repository.NoTX)
}

func (uc *planUC) Deactivate(ctx context.Context, id string) error {
	p, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	if p.IsDefault {
		return domain.ErrIsDefaultPlan
	}
	if !p.Active {
		return nil // already inactive; idempotent success
	}
	return uc.repo.Deactivate(ctx, repository.NoTX, id)
}
