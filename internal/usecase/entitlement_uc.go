package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/credit"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
	"ai-credit-metering/internal/infra/metrics"
)

// EntitlementView pairs an entitlement with its plan for account-facing
// surfaces.
type EntitlementView struct {
	Entitlement *model.Entitlement
	Plan        *model.Plan
}

// UsageView is the credit-denominated usage summary shown to accounts.
type UsageView struct {
	UsedCredits      float64   `json:"used_credits"`
	MaxCredits       float64   `json:"max_credits"`
	RemainingCredits float64   `json:"remaining_credits"`
	PercentageUsed   float64   `json:"percentage_used"`
	LastResetDate    time.Time `json:"last_reset_date"`
	PlanName         string    `json:"plan_name"`
}

// LifecycleUseCase owns the entitlement state machine: default-plan
// bootstrap, upgrade, cancellation, expiry, and the periodic usage reset.
type LifecycleUseCase interface {
	// BootstrapDefault is the idempotent self-healing safety net: ensures the
	// account holds an active entitlement, granting the default plan if not.
	BootstrapDefault(ctx context.Context, accountID string) (*model.Entitlement, error)
	// Subscribe moves the account onto a paid plan. Rejects the default plan
	// and paid-to-paid switches.
	Subscribe(ctx context.Context, accountID, planID string) (*model.Entitlement, error)
	// Cancel reverts the account to the default plan; cancellation never
	// leaves an account without an active entitlement.
	Cancel(ctx context.Context, accountID string) (*model.Entitlement, error)
	GetMyEntitlement(ctx context.Context, accountID string) (*EntitlementView, error)
	GetUsage(ctx context.Context, accountID string) (*UsageView, error)
	// ResetAllDue zeroes usage for every active entitlement whose last reset
	// is older than its plan period. Idempotent; safe to run concurrently
	// with admission checks.
	ResetAllDue(ctx context.Context) (int, error)
	// FinishExpired transitions past-end entitlements to expired and
	// re-bootstraps the affected accounts onto the default plan.
	FinishExpired(ctx context.Context) (int, error)

	// GrantPurchaseTx applies a completed purchase inside the caller's
	// transaction: extends a matching active entitlement or replaces the
	// current one with a fresh grant on the plan.
	GrantPurchaseTx(ctx context.Context, tx repository.Tx, accountID, planID string) (*model.Entitlement, error)
	// RevokePlanTx cancels the account's active entitlement on the given
	// plan (refund path) and reverts to the default plan.
	RevokePlanTx(ctx context.Context, tx repository.Tx, accountID, planID string) error
}

var _ LifecycleUseCase = (*lifecycleUC)(nil)

type lifecycleUC struct {
	ents  repository.EntitlementRepository
	plans repository.PlanRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewLifecycleUseCase(ents repository.EntitlementRepository, plans repository.PlanRepository, tm repository.TransactionManager, logger *zerolog.Logger) *lifecycleUC {
	l := logger.With().Str("component", "LifecycleUC").Logger()
	return &lifecycleUC{ents: ents, plans: plans, tm: tm, log: &l}
}

func (uc *lifecycleUC) BootstrapDefault(ctx context.Context, accountID string) (*model.Entitlement, error) {
	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Entitlement
	err := uc.tm.WithAccountLock(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		existing, err := uc.ents.FindActiveByAccount(ctx, tx, accountID)
		if err == nil && existing != nil {
			out = existing
			return nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		e, err := uc.grantTx(ctx, tx, accountID, nil)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *lifecycleUC) Subscribe(ctx context.Context, accountID, planID string) (*model.Entitlement, error) {
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	if plan.IsDefault {
		return nil, domain.ErrIsDefaultPlan
	}
	if !plan.Purchasable() {
		return nil, domain.ErrPlanNotPurchasable
	}

	var out *model.Entitlement
	err = uc.tm.WithAccountLock(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		e, err := uc.replaceTx(ctx, tx, accountID, plan)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncEntitlementTransition("subscribed")
	return out, nil
}

func (uc *lifecycleUC) Cancel(ctx context.Context, accountID string) (*model.Entitlement, error) {
	var out *model.Entitlement
	err := uc.tm.WithAccountLock(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		active, err := uc.ents.FindActiveByAccount(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoEntitlement
			}
			return err
		}
		plan, err := uc.plans.FindByID(ctx, tx, active.PlanID)
		if err != nil {
			return err
		}
		if plan.IsDefault {
			return domain.ErrCannotCancelDefault
		}
		now := time.Now()
		if err := uc.ents.UpdateStatus(ctx, tx, active.ID, model.EntitlementStatusCancelled, &now); err != nil {
			return err
		}
		// Cancellation means "revert to default", never "revert to none".
		e, err := uc.grantTx(ctx, tx, accountID, nil)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncEntitlementTransition("cancelled")
	return out, nil
}

func (uc *lifecycleUC) GetMyEntitlement(ctx context.Context, accountID string) (*EntitlementView, error) {
	e, err := uc.ents.FindActiveByAccount(ctx, repository.NoTX, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		// self-heal: an account is never left without an active entitlement
		e, err = uc.BootstrapDefault(ctx, accountID)
	}
	if err != nil {
		return nil, err
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, e.PlanID)
	if err != nil {
		return nil, err
	}
	return &EntitlementView{Entitlement: e, Plan: plan}, nil
}

func (uc *lifecycleUC) GetUsage(ctx context.Context, accountID string) (*UsageView, error) {
	v, err := uc.GetMyEntitlement(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return NewUsageView(v.Entitlement, v.Plan), nil
}

// NewUsageView converts an entitlement's raw-unit counters into credits.
func NewUsageView(e *model.Entitlement, plan *model.Plan) *UsageView {
	used := credit.RawUnitsToCredits(e.Used)
	max := credit.RawUnitsToCredits(plan.GrantedUnits)
	remaining := credit.RawUnitsToCredits(e.Remaining(plan))
	pct := 0.0
	if max > 0 {
		pct = used / max * 100
		if pct > 100 {
			pct = 100
		}
	}
	return &UsageView{
		UsedCredits:      used,
		MaxCredits:       max,
		RemainingCredits: remaining,
		PercentageUsed:   pct,
		LastResetDate:    e.LastReset,
		PlanName:         plan.Name,
	}
}

func (uc *lifecycleUC) ResetAllDue(ctx context.Context) (int, error) {
	n, err := uc.ents.ResetAllDue(ctx, repository.NoTX, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddEntitlementResets(n)
		uc.log.Info().Int("count", n).Msg("usage counters reset")
	}
	return n, nil
}

func (uc *lifecycleUC) FinishExpired(ctx context.Context) (int, error) {
	accounts, err := uc.ents.MarkExpired(ctx, repository.NoTX, time.Now())
	if err != nil {
		return 0, err
	}
	for _, acct := range accounts {
		if _, err := uc.BootstrapDefault(ctx, acct); err != nil {
			uc.log.Error().Err(err).Str("account_id", acct).Msg("re-bootstrap after expiry failed")
		}
	}
	if len(accounts) > 0 {
		metrics.AddEntitlementsExpired(len(accounts))
	}
	return len(accounts), nil
}

func (uc *lifecycleUC) GrantPurchaseTx(ctx context.Context, tx repository.Tx, accountID, planID string) (*model.Entitlement, error) {
	plan, err := uc.plans.FindByID(ctx, tx, planID)
	if err != nil {
		return nil, err
	}
	// Renewal of the plan the account is already on extends the period
	// instead of replacing the grant.
	same, err := uc.ents.FindActiveByAccountAndPlan(ctx, tx, accountID, planID)
	if err == nil && same != nil {
		if err := uc.ents.ExtendEnd(ctx, tx, same.ID, plan.EntitlementHorizon()); err != nil {
			return nil, err
		}
		return same, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return uc.replaceTx(ctx, tx, accountID, plan)
}

func (uc *lifecycleUC) RevokePlanTx(ctx context.Context, tx repository.Tx, accountID, planID string) error {
	active, err := uc.ents.FindActiveByAccountAndPlan(ctx, tx, accountID, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // nothing to revoke; refund of an inactive plan
		}
		return err
	}
	now := time.Now()
	if err := uc.ents.UpdateStatus(ctx, tx, active.ID, model.EntitlementStatusCancelled, &now); err != nil {
		return err
	}
	_, err = uc.grantTx(ctx, tx, accountID, nil)
	return err
}

// replaceTx cancels the current active entitlement (default-plan grants
// only; paid grants reject) and creates a fresh one on the target plan.
// Usage never carries over across plan changes.
func (uc *lifecycleUC) replaceTx(ctx context.Context, tx repository.Tx, accountID string, plan *model.Plan) (*model.Entitlement, error) {
	active, err := uc.ents.FindActiveByAccount(ctx, tx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if active != nil {
		cur, err := uc.plans.FindByID(ctx, tx, active.PlanID)
		if err != nil {
			return nil, err
		}
		if !cur.IsDefault {
			return nil, domain.ErrAlreadySubscribed
		}
		now := time.Now()
		if err := uc.ents.UpdateStatus(ctx, tx, active.ID, model.EntitlementStatusCancelled, &now); err != nil {
			return nil, err
		}
	}
	return uc.newGrantTx(ctx, tx, accountID, plan)
}

// grantTx creates a fresh entitlement; a nil plan means the default plan.
func (uc *lifecycleUC) grantTx(ctx context.Context, tx repository.Tx, accountID string, plan *model.Plan) (*model.Entitlement, error) {
	if plan == nil {
		var err error
		plan, err = uc.plans.FindDefault(ctx, tx)
		if err != nil {
			return nil, err
		}
	}
	return uc.newGrantTx(ctx, tx, accountID, plan)
}

func (uc *lifecycleUC) newGrantTx(ctx context.Context, tx repository.Tx, accountID string, plan *model.Plan) (*model.Entitlement, error) {
	// An active row past its end is invisible to FindActiveByAccount but
	// still holds the one-active slot until the expiry sweep runs; clear it
	// so the insert below cannot collide with it.
	if err := uc.ents.ExpireOverdue(ctx, tx, accountID, time.Now()); err != nil {
		return nil, err
	}
	e, err := model.NewEntitlement(uuid.NewString(), accountID, plan)
	if err != nil {
		return nil, err
	}
	if err := uc.ents.Save(ctx, tx, e); err != nil {
		return nil, err
	}
	uc.log.Debug().Str("account_id", accountID).Str("plan_id", plan.ID).Msg("entitlement granted")
	return e, nil
}
