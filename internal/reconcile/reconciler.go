package reconcile

import (
	"context"
	"log/slog"
	"time"

	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/queue"
	"remuxd/internal/telemetry"
)

// sweepInterval is how often the background loop looks for stale tasks.
// The staleness threshold itself comes from configuration; sweeping more
// often than the threshold only bounds detection latency.
const sweepInterval = time.Minute

// Reconciler returns abandoned in-flight tasks to the pending queue and
// prunes old terminal records. Requeueing never charges an attempt.
type Reconciler struct {
	store    *queue.Store
	cfg      *config.Config
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs a reconciler.
func New(cfg *config.Config, store *queue.Store, notifier notifications.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Run sweeps for stale tasks until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("staleness sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep returns tasks whose last update predates the staleness threshold
// to pending. Attempts are left unchanged; a stalled worker is not the
// task's fault.
func (r *Reconciler) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-r.cfg.StaleThreshold())
	requeued, err := r.store.RequeueStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		telemetry.TasksRequeued.Add(float64(requeued))
		r.logger.Warn("requeued stale tasks",
			logging.Int64("count", requeued),
			logging.Duration("threshold", r.cfg.StaleThreshold()))
	}
	return requeued, nil
}

// Cleanup deletes terminal tasks older than the retention window.
func (r *Reconciler) Cleanup(ctx context.Context) (int64, error) {
	removed, err := r.store.CleanupOldRecords(ctx, r.cfg.Retention())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		telemetry.RecordsCleaned.Add(float64(removed))
		r.logger.Info("removed old task records",
			logging.Int64("count", removed),
			logging.Duration("retention", r.cfg.Retention()))
	}
	return removed, nil
}

// HandleWorkerStartup requeues every in-flight task. A worker that just
// booted holds nothing, so anything marked sent or processing is orphaned.
func (r *Reconciler) HandleWorkerStartup(ctx context.Context) (int64, error) {
	requeued, err := r.store.RequeueInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		telemetry.TasksRequeued.Add(float64(requeued))
	}
	r.logger.Info("worker startup, requeued in-flight tasks",
		logging.Int64("count", requeued))
	return requeued, nil
}

// HandleWorkerShutdown requeues in-flight tasks when the worker announces
// a graceful shutdown, and notifies the operator.
func (r *Reconciler) HandleWorkerShutdown(ctx context.Context) (int64, error) {
	requeued, err := r.store.RequeueInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		telemetry.TasksRequeued.Add(float64(requeued))
	}
	r.logger.Warn("worker shutdown, requeued in-flight tasks",
		logging.Int64("count", requeued))

	if r.notifier != nil {
		if err := r.notifier.NotifyWorkerOffline(ctx, requeued); err != nil {
			r.logger.Warn("worker offline notification failed", logging.Error(err))
		}
	}
	return requeued, nil
}
