package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-credit-metering/internal/usecase"
)

// ExpiryWorker periodically finishes entitlements that ran past their end
// timestamp and drops the affected accounts back to the default plan.
type ExpiryWorker struct {
	interval  time.Duration
	lifecycle usecase.LifecycleUseCase
	log       *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, lifecycle usecase.LifecycleUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:  interval,
		lifecycle: lifecycle,
		log:       &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.lifecycle.FinishExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("expired entitlements finished")
			}
		}
	}
}
