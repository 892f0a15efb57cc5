package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-credit-metering/internal/config"
	"ai-credit-metering/internal/domain/ports/adapter"
	"ai-credit-metering/internal/infra/api"
	pg "ai-credit-metering/internal/infra/db/postgres"
	"ai-credit-metering/internal/infra/logging"
	"ai-credit-metering/internal/infra/metrics"
	pay "ai-credit-metering/internal/infra/payment"
	red "ai-credit-metering/internal/infra/redis"
	"ai-credit-metering/internal/infra/sched"
	"ai-credit-metering/internal/infra/web"
	"ai-credit-metering/internal/infra/worker"
	"ai-credit-metering/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, noop gateway allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// collectors queue up in package init; one call flushes them into the
	// default registry promhttp serves
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.PoolSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL)
	entRepo := pg.NewEntitlementRepo(pool)
	orderRepo := pg.NewOrderRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)

	// ---- Worker pool for deferred deductions ----
	taskPool := worker.NewPool(8, logger)
	taskPool.Start(ctx)
	defer taskPool.Stop()

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	var codec adapter.WebhookCodec
	switch cfg.Payment.Provider {
	case "noop":
		gateway = pay.NewNoopPaymentGateway()
		codec = pay.NewAtlasPayWebhookCodec(cfg.Payment.WebhookSecret)
		logger.Warn().Msg("payment gateway: noop (no real settlement)")
	default:
		gateway = pay.NewAtlasPayGateway(cfg.Payment.MerchantID, cfg.Payment.APIBase, cfg.Payment.CallbackURL)
		codec = pay.NewAtlasPayWebhookCodec(cfg.Payment.WebhookSecret)
		logger.Info().Str("provider", gateway.Name()).Msg("payment gateway ready")
	}

	// ---- Use cases ----
	lifecycleUC := usecase.NewLifecycleUseCase(entRepo, planRepo, tm, logger)
	admissionUC := usecase.NewAdmissionUseCase(entRepo, planRepo, taskPool, logger)
	planUC := usecase.NewPlanUseCase(planRepo)
	checkoutUC := usecase.NewCheckoutUseCase(orderRepo, payRepo, planRepo, entRepo, lifecycleUC, tm, gateway, codec, logger)

	// ---- Public HTTP API ----
	apiSrv := api.NewServer(lifecycleUC, admissionUC, checkoutUC, planUC, cfg.Auth, logger)
	publicServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiSrv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", publicServer.Addr).Msg("public API listening")
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("public server error")
		}
	}()

	// ---- Admin HTTP API ----
	adminSrv := web.NewServer(planUC, lifecycleUC, cfg.Auth.AdminAPIKey, logger)
	adminMux := http.NewServeMux()
	adminSrv.RegisterRoutes(adminMux)
	adminHandler := api.Chain(adminMux, api.TraceID(), api.Recover(logger), api.RequestLog(logger))
	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler:      adminHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", adminServer.Addr).Msg("admin API listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- Background sweeps ----
	resetWorker := sched.NewResetWorker(cfg.Sweep.ResetInterval, lifecycleUC, logger)
	go func() { _ = resetWorker.Run(ctx) }()

	expiryWorker := sched.NewExpiryWorker(cfg.Sweep.ExpiryInterval, lifecycleUC, logger)
	go func() { _ = expiryWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = publicServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}
