package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-credit-metering/internal/usecase"
)

// ResetWorker periodically zeroes usage counters whose reset cadence has
// elapsed. Resets are computed in one statement against the datastore, so
// running multiple instances is safe.
type ResetWorker struct {
	interval  time.Duration
	lifecycle usecase.LifecycleUseCase
	log       *zerolog.Logger
}

func NewResetWorker(interval time.Duration, lifecycle usecase.LifecycleUseCase, logger *zerolog.Logger) *ResetWorker {
	resetLog := logger.With().Str("component", "ResetWorker").Logger()
	return &ResetWorker{
		interval:  interval,
		lifecycle: lifecycle,
		log:       &resetLog,
	}
}

func (w *ResetWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting usage reset worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping usage reset worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.lifecycle.ResetAllDue(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("usage reset sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("usage counters reset")
			}
		}
	}
}
