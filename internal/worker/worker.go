// Package worker runs the digest dispatcher on an in-process interval for
// deployments without an external scheduler. The HTTP trigger remains the
// primary entry point; both call the same dispatcher run.
package worker

import (
	"context"
	"time"

	"github.com/marchespei/marchespei-api/internal/digest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Worker struct {
	dispatcher   *digest.Dispatcher
	pollInterval time.Duration
	logger       zerolog.Logger
}

func New(dispatcher *digest.Dispatcher, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "digest_worker").Logger(),
	}
}

// Start polls until the context is cancelled. A failed run is logged and the
// next tick proceeds normally.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("worker started, polling for due digests")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			summary, err := w.dispatcher.RunScheduled(ctx)
			if err != nil {
				w.logger.Error().Err(errors.Wrap(err, "scheduled run")).Msg("digest run failed")
				continue
			}
			if summary.Processed > 0 {
				w.logger.Info().
					Int("processed", summary.Processed).
					Int("sent", summary.Sent).
					Int("failed", summary.Failed).
					Msg("digest batch processed")
			}
		}
	}
}
