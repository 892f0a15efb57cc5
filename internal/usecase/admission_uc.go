package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/repository"
	"ai-credit-metering/internal/infra/metrics"
)

type AdmissionReason string

const (
	ReasonNoEntitlement       AdmissionReason = "NO_ENTITLEMENT"
	ReasonInsufficientCredits AdmissionReason = "INSUFFICIENT_CREDITS"
)

// EntitlementSnapshot is included with denials so clients can render the
// account's balance.
type EntitlementSnapshot struct {
	UsedUnits      int64   `json:"used_units"`
	MaxUnits       int64   `json:"max_units"`
	RemainingUnits int64   `json:"remaining_units"`
	PercentageUsed float64 `json:"percentage_used"`
}

// AdmissionResult is a typed outcome, never an error: denials are expected,
// user-facing results.
type AdmissionResult struct {
	Allowed  bool                 `json:"allowed"`
	Reason   AdmissionReason      `json:"reason,omitempty"`
	Snapshot *EntitlementSnapshot `json:"snapshot,omitempty"`
}

// AdmissionUseCase is the synchronous gate in front of every metered action.
// The check is advisory and conservative: the caller passes an over-estimate,
// performs the action if allowed, then reports measured consumption. The
// post-hoc deduction may push usage slightly past the grant; the next check
// then denies further usage.
type AdmissionUseCase interface {
	// CheckAdmission compares the estimate against the remaining entitlement.
	// Datastore errors propagate: the gate fails closed, never open.
	CheckAdmission(ctx context.Context, accountID string, estimatedUnits int64) (*AdmissionResult, error)
	// ReportUsage records measured consumption best-effort and asynchronously.
	// Failures are logged and swallowed; a delivered result is never revoked
	// over an accounting failure.
	ReportUsage(ctx context.Context, accountID string, actualUnits int64)
}

var _ AdmissionUseCase = (*admissionUC)(nil)

// TaskRunner is the fire-and-forget execution surface for deductions.
type TaskRunner interface {
	Submit(task func(ctx context.Context) error) error
}

type admissionUC struct {
	ents  repository.EntitlementRepository
	plans repository.PlanRepository
	tasks TaskRunner
	log   *zerolog.Logger
}

func NewAdmissionUseCase(ents repository.EntitlementRepository, plans repository.PlanRepository, tasks TaskRunner, logger *zerolog.Logger) *admissionUC {
	l := logger.With().Str("component", "AdmissionUC").Logger()
	return &admissionUC{ents: ents, plans: plans, tasks: tasks, log: &l}
}

func (uc *admissionUC) CheckAdmission(ctx context.Context, accountID string, estimatedUnits int64) (*AdmissionResult, error) {
	if accountID == "" || estimatedUnits < 0 {
		return nil, domain.ErrInvalidArgument
	}
	ent, err := uc.ents.FindActiveByAccount(ctx, repository.NoTX, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncAdmission("denied", string(ReasonNoEntitlement))
			return &AdmissionResult{Allowed: false, Reason: ReasonNoEntitlement}, nil
		}
		return nil, err // fail closed
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, ent.PlanID)
	if err != nil {
		return nil, err
	}
	snap := snapshot(ent, plan)
	if ent.Remaining(plan) < estimatedUnits {
		metrics.IncAdmission("denied", string(ReasonInsufficientCredits))
		return &AdmissionResult{Allowed: false, Reason: ReasonInsufficientCredits, Snapshot: snap}, nil
	}
	metrics.IncAdmission("allowed", "")
	return &AdmissionResult{Allowed: true, Snapshot: snap}, nil
}

func (uc *admissionUC) ReportUsage(ctx context.Context, accountID string, actualUnits int64) {
	if accountID == "" || actualUnits <= 0 {
		return
	}
	err := uc.tasks.Submit(func(taskCtx context.Context) error {
		return uc.deduct(taskCtx, accountID, actualUnits)
	})
	if err != nil {
		// Queue saturated: fall back to a synchronous best-effort attempt so
		// bursts do not silently drop charges.
		if derr := uc.deduct(ctx, accountID, actualUnits); derr != nil {
			uc.log.Error().Err(derr).Str("account_id", accountID).Int64("units", actualUnits).
				Msg("usage deduction dropped")
		}
	}
}

func (uc *admissionUC) deduct(ctx context.Context, accountID string, units int64) error {
	ent, err := uc.ents.FindActiveByAccount(ctx, repository.NoTX, accountID)
	if err != nil {
		uc.log.Warn().Err(err).Str("account_id", accountID).Int64("units", units).
			Msg("usage deduction failed: no active entitlement")
		return nil // swallowed: the action already produced its output
	}
	if err := uc.ents.IncrementUsage(ctx, repository.NoTX, ent.ID, units); err != nil {
		uc.log.Error().Err(err).Str("account_id", accountID).Str("entitlement_id", ent.ID).
			Int64("units", units).Msg("usage deduction failed")
		return nil
	}
	metrics.AddUnitsDeducted(units)
	return nil
}

func snapshot(e *model.Entitlement, plan *model.Plan) *EntitlementSnapshot {
	pct := 0.0
	if plan.GrantedUnits > 0 {
		pct = float64(e.Used) / float64(plan.GrantedUnits) * 100
		if pct > 100 {
			pct = 100
		}
	}
	return &EntitlementSnapshot{
		UsedUnits:      e.Used,
		MaxUnits:       plan.GrantedUnits,
		RemainingUnits: e.Remaining(plan),
		PercentageUsed: pct,
	}
}
