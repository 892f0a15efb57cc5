//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/usecase"
)

func TestPlanUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a purchasable plan", func(t *testing.T) {
		repo := NewMockPlanRepo()
		uc := usecase.NewPlanUseCase(repo)

		p, err := uc.Create(ctx, "Pro", 29_00, "USD", model.BillingPeriodMonthly, 12_000_000, false)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if p.ID == "" {
			t.Error("expected a generated id")
		}
		if !p.Purchasable() {
			t.Error("expected a purchasable plan")
		}
	})

	t.Run("rejects a second default plan", func(t *testing.T) {
		repo := NewMockPlanRepo()
		uc := usecase.NewPlanUseCase(repo)

		if _, err := uc.Create(ctx, "Free", 0, "USD", model.BillingPeriodNone, 250_000, true); err != nil {
			t.Fatalf("first default: %v", err)
		}
		if _, err := uc.Create(ctx, "Free2", 0, "USD", model.BillingPeriodNone, 250_000, true); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		repo := NewMockPlanRepo()
		uc := usecase.NewPlanUseCase(repo)

		if _, err := uc.Create(ctx, "", 100, "USD", model.BillingPeriodMonthly, 1, false); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty name, got %v", err)
		}
		if _, err := uc.Create(ctx, "Weird", 100, "USD", "biweekly", 1, false); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for bad period, got %v", err)
		}
	})
}

func TestPlanUseCase_Deactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivates and is idempotent", func(t *testing.T) {
		repo := NewMockPlanRepo()
		uc := usecase.NewPlanUseCase(repo)

		p, err := uc.Create(ctx, "Pro", 29_00, "USD", model.BillingPeriodMonthly, 12_000_000, false)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := uc.Deactivate(ctx, p.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if err := uc.Deactivate(ctx, p.ID); err != nil {
			t.Errorf("second deactivate must be a no-op, got %v", err)
		}

		got, _ := uc.Get(ctx, p.ID)
		if got.Active {
			t.Error("expected inactive plan")
		}
	})

	t.Run("refuses to deactivate the default plan", func(t *testing.T) {
		repo := NewMockPlanRepo()
		uc := usecase.NewPlanUseCase(repo)

		p, err := uc.Create(ctx, "Free", 0, "USD", model.BillingPeriodNone, 250_000, true)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := uc.Deactivate(ctx, p.ID); !errors.Is(err, domain.ErrIsDefaultPlan) {
			t.Errorf("expected ErrIsDefaultPlan, got %v", err)
		}
	})
}
