package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/queue"
	"remuxd/internal/telemetry"
	"remuxd/internal/workerclient"
)

// Client is the worker surface the dispatcher needs. Satisfied by
// *workerclient.Client; tests substitute fakes.
type Client interface {
	Dispatch(ctx context.Context, req workerclient.DispatchRequest) error
}

// Dispatcher drains the pending queue into the worker, one task per
// poll, respecting the worker's concurrency limit.
type Dispatcher struct {
	store       *queue.Store
	client      Client
	cfg         *config.Config
	notifier    notifications.Service
	logger      *slog.Logger
	workerID    string
	callbackURL string
}

// New constructs a dispatcher with default collaborators.
func New(cfg *config.Config, store *queue.Store, client Client, notifier notifications.Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		client:      client,
		cfg:         cfg,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "dispatcher"),
		workerID:    workerLabel(cfg.Worker.BaseURL),
		callbackURL: callbackURL(cfg.Paths.APIBind),
	}
}

// Run polls the queue until the context is cancelled. Dispatch errors
// back off by the configured error retry interval instead of the poll
// interval so a down worker is not hammered.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := d.cfg.PollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		wait := interval
		if _, err := d.DispatchNext(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("dispatch cycle failed", logging.Error(err))
			wait = d.cfg.ErrorRetryInterval()
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// DispatchNext attempts to hand the highest priority pending task to
// the worker. It reports whether a task was dispatched. A busy worker
// charges the task's attempt budget per the normal failure policy but
// is not surfaced as a cycle error.
func (d *Dispatcher) DispatchNext(ctx context.Context) (bool, error) {
	inFlight, err := d.store.CountInFlight(ctx)
	if err != nil {
		return false, err
	}
	telemetry.InFlightGauge.Set(float64(inFlight))
	if inFlight >= d.cfg.Worker.MaxConcurrent {
		return false, nil
	}

	task, err := d.store.NextPending(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		telemetry.QueueDepthGauge.Set(0)
		return false, nil
	}

	pending, err := d.store.PendingTasks(ctx, 0)
	if err == nil {
		telemetry.QueueDepthGauge.Set(float64(len(pending)))
	}

	// Claim the row first so racing dispatchers cannot double-send.
	if err := d.store.MarkSent(ctx, task.ID, d.workerID); err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
			// Lost the race; another actor moved the task.
			return false, nil
		}
		return false, err
	}

	req := workerclient.DispatchRequest{
		TaskID:      task.ID,
		Name:        task.Name,
		SourcePath:  task.SourcePath,
		Priority:    task.Priority,
		CallbackURL: d.callbackURL,
		RequestID:   uuid.NewString(),
	}
	if err := d.client.Dispatch(ctx, req); err != nil {
		return false, d.handleDispatchFailure(ctx, task, err)
	}

	telemetry.TasksDispatched.Inc()
	d.logger.Info("task dispatched",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskName, task.Name),
		logging.Int("priority", task.Priority))
	return true, nil
}

func (d *Dispatcher) handleDispatchFailure(ctx context.Context, task *queue.Task, dispatchErr error) error {
	busy := errors.Is(dispatchErr, workerclient.ErrBusy)
	if busy {
		telemetry.DispatchBusy.Inc()
	} else {
		telemetry.DispatchFailures.Inc()
	}

	reason := fmt.Sprintf("dispatch failed: %v", dispatchErr)
	resolved, err := d.store.RecordFailure(ctx, task.ID, reason, d.cfg.Workflow.MaxAttempts)
	if err != nil {
		return queue.Wrap(queue.ErrDispatchFailure, "dispatcher", "record failure",
			fmt.Sprintf("task %d dispatch failed and the failure could not be recorded", task.ID), err)
	}

	d.logger.Warn("dispatch failed",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskName, task.Name),
		logging.Bool("worker_busy", busy),
		logging.Int("attempts", resolved.Attempts),
		logging.String(logging.FieldStatus, string(resolved.Status)),
		logging.Error(dispatchErr))

	if resolved.Status == queue.StatusFailed {
		telemetry.TasksFailed.Inc()
		if d.notifier != nil {
			if err := d.notifier.NotifyTaskFailed(ctx, task.Name, reason, resolved.Attempts); err != nil {
				d.logger.Warn("failure notification failed", logging.Error(err))
			}
		}
	}

	if busy {
		// Busy is expected under load; the next poll retries.
		return nil
	}
	return queue.Wrap(queue.ErrDispatchFailure, "dispatcher", "send task",
		fmt.Sprintf("task %d could not be handed to the worker", task.ID), dispatchErr)
}

func workerLabel(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return baseURL
	}
	return parsed.Host
}

// callbackURL derives the address the worker should post status
// callbacks to from the API bind address.
func callbackURL(apiBind string) string {
	if apiBind == "" {
		return ""
	}
	return "http://" + apiBind + "/api/webhook/status"
}
