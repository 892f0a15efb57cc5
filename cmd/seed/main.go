package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"ai-credit-metering/internal/config"
	"ai-credit-metering/internal/domain/model"
	pg "ai-credit-metering/internal/infra/db/postgres"
	"ai-credit-metering/internal/infra/logging"
	"ai-credit-metering/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	_ = logger
	planRepo := pg.NewPlanRepo(pool)
	planUC := usecase.NewPlanUseCase(planRepo)

	// If plans already exist, do nothing.
	plans, err := planUC.ListAll(ctx)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		for _, p := range plans {
			fmt.Printf("  - %s (period=%s, units=%d, price=%d %s)\n", p.Name, p.Period, p.GrantedUnits, p.PriceCents, p.Currency)
		}
		return
	}

	// The default plan must exist before any account can be bootstrapped.
	seed := []struct {
		Name      string
		Period    model.BillingPeriod
		Units     int64
		Price     int64
		IsDefault bool
	}{
		{"Free", model.BillingPeriodNone, 250_000, 0, true},
		{"Starter", model.BillingPeriodMonthly, 2_500_000, 9_00, false},
		{"Pro", model.BillingPeriodMonthly, 12_000_000, 29_00, false},
		{"Pro Annual", model.BillingPeriodAnnual, 150_000_000, 290_00, false},
	}

	for _, s := range seed {
		p, err := planUC.Create(ctx, s.Name, s.Price, "USD", s.Period, s.Units, s.IsDefault)
		if err != nil {
			log.Fatalf("create plan %q: %v", s.Name, err)
		}
		fmt.Printf("seeded: %s (id=%s, period=%s, units=%d, price=%d USD cents)\n", p.Name, p.ID, p.Period, p.GrantedUnits, p.PriceCents)
	}

	fmt.Println("Seeding complete.")
}
