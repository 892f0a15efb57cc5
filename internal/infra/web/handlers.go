package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/usecase"
)

// planCreateRequest is the expected JSON request body for creating a plan.
type planCreateRequest struct {
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	Period       string `json:"period"`
	GrantedUnits int64  `json:"granted_units"`
	IsDefault    bool   `json:"is_default"`
}

func plansCreateHandler(planUC usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		plan, err := planUC.Create(ctx, req.Name, req.PriceCents, req.Currency, model.BillingPeriod(req.Period), req.GrantedUnits, req.IsDefault)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrAlreadyExists):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "Failed to create plan", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(plan)
	}
}

func plansListHandler(planUC usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := planUC.ListAll(r.Context())
		if err != nil {
			http.Error(w, "Failed to list plans", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Items []*model.Plan `json:"items"`
		}{Items: plans})
	}
}

func planGetHandler(planUC usecase.PlanUseCase, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := planUC.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPlanNotFound) {
				http.Error(w, "Plan not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get plan", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(plan)
	}
}

func planDeactivateHandler(planUC usecase.PlanUseCase, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := planUC.Deactivate(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPlanNotFound):
				http.Error(w, "Plan not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrIsDefaultPlan):
				http.Error(w, "Cannot deactivate the default plan", http.StatusUnprocessableEntity)
			default:
				http.Error(w, "Failed to deactivate plan", http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func accountEntitlementHandler(lifecycleUC usecase.LifecycleUseCase, accountID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := lifecycleUC.GetMyEntitlement(r.Context(), accountID)
		if err != nil {
			http.Error(w, "Failed to get entitlement", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Entitlement *model.Entitlement `json:"entitlement"`
			Plan        *model.Plan        `json:"plan"`
		}{Entitlement: v.Entitlement, Plan: v.Plan})
	}
}

func accountUsageHandler(lifecycleUC usecase.LifecycleUseCase, accountID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := lifecycleUC.GetUsage(r.Context(), accountID)
		if err != nil {
			http.Error(w, "Failed to get usage", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(v)
	}
}
