package notify

import (
	"context"
	"log/slog"
	"time"
)

// Worker drives the queue on timers: a frequent drain tick and an
// infrequent retention sweep.
type Worker struct {
	queue         *Queue
	logger        *slog.Logger
	drainInterval time.Duration
	sweepInterval time.Duration
	batchSize     int
}

// NewWorker builds a delivery worker around the queue.
func NewWorker(queue *Queue, logger *slog.Logger, drainInterval, sweepInterval time.Duration, batchSize int) *Worker {
	if drainInterval <= 0 {
		drainInterval = 5 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		queue:         queue,
		logger:        logger,
		drainInterval: drainInterval,
		sweepInterval: sweepInterval,
		batchSize:     batchSize,
	}
}

// Run blocks until the context is cancelled, draining and sweeping on their
// respective tickers.
func (w *Worker) Run(ctx context.Context) {
	drain := time.NewTicker(w.drainInterval)
	defer drain.Stop()
	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-drain.C:
			if _, err := w.queue.Drain(ctx, w.batchSize); err != nil {
				w.logger.Error("notification drain failed", "error", err)
			}
		case <-sweep.C:
			deleted, err := w.queue.Sweep(ctx)
			if err != nil {
				w.logger.Error("notification sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				w.logger.Info("notification sweep", "deleted", deleted)
			}
		}
	}
}
