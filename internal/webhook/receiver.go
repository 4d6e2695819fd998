package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/organizer"
	"remuxd/internal/queue"
	"remuxd/internal/telemetry"
)

// StatusCallback is the payload the worker posts back to the coordinator.
type StatusCallback struct {
	TaskID            int64    `json:"task_id"`
	Status            string   `json:"status"`
	SourceFolder      string   `json:"source_folder,omitempty"`
	ArtifactFile      string   `json:"artifact_file,omitempty"`
	SizeBytes         int64    `json:"size_bytes,omitempty"`
	ProcessingSeconds float64  `json:"processing_seconds,omitempty"`
	ProgressPercent   *float64 `json:"progress_percent,omitempty"`
	Error             string   `json:"error,omitempty"`
	WorkerID          string   `json:"worker_id,omitempty"`
}

// Relocator moves a completed artifact into the library. Satisfied by
// *organizer.Organizer.
type Relocator interface {
	Relocate(ctx context.Context, task *queue.Task, artifactFile string) (string, error)
}

// Receiver applies worker status callbacks to the task store. Callbacks
// arrive asynchronously and unordered; every transition is a conditional
// update so duplicates and stragglers are safe.
type Receiver struct {
	store     *queue.Store
	relocator Relocator
	notifier  notifications.Service
	cfg       *config.Config
	logger    *slog.Logger
}

// NewReceiver constructs a status receiver.
func NewReceiver(cfg *config.Config, store *queue.Store, relocator Relocator, notifier notifications.Service, logger *slog.Logger) *Receiver {
	if relocator == nil {
		relocator = organizer.New(cfg, logger)
	}
	return &Receiver{
		store:     store,
		relocator: relocator,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "webhook"),
	}
}

// Apply routes a callback to the matching transition. The returned error
// is one of the queue taxonomy markers; transport errors never reach the
// store untranslated.
func (r *Receiver) Apply(ctx context.Context, cb StatusCallback) error {
	task, err := r.store.GetByID(ctx, cb.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", cb.TaskID, queue.ErrNotFound)
	}

	switch strings.ToLower(strings.TrimSpace(cb.Status)) {
	case "processing":
		return r.applyProcessing(ctx, task, cb)
	case "progress":
		return r.applyProgress(ctx, task, cb)
	case "completed":
		return r.applyCompleted(ctx, task, cb)
	case "failed":
		return r.applyFailed(ctx, task, cb)
	default:
		return fmt.Errorf("callback status %q: %w", cb.Status, queue.ErrInvalidStatus)
	}
}

func (r *Receiver) applyProcessing(ctx context.Context, task *queue.Task, cb StatusCallback) error {
	if task.IsTerminal() {
		// Late start report after the task already finished elsewhere.
		r.logger.Warn("processing callback for terminal task ignored",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldStatus, string(task.Status)))
		return nil
	}
	if err := r.store.MarkProcessing(ctx, task.ID, cb.WorkerID); err != nil {
		return err
	}
	if cb.ProgressPercent != nil {
		if _, err := r.store.UpdateProgress(ctx, task.ID, *cb.ProgressPercent); err != nil {
			return err
		}
	}
	r.logger.Info("task processing",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskName, task.Name))
	return nil
}

func (r *Receiver) applyProgress(ctx context.Context, task *queue.Task, cb StatusCallback) error {
	if cb.ProgressPercent == nil {
		return fmt.Errorf("progress callback without percentage: %w", queue.ErrInvalidStatus)
	}
	applied, err := r.store.UpdateProgress(ctx, task.ID, *cb.ProgressPercent)
	if err != nil {
		return err
	}
	if !applied {
		// Progress only counts while processing; anything else is a
		// stale report and is dropped, not an error.
		telemetry.ProgressDropped.Inc()
		r.logger.Warn("progress report dropped",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldStatus, string(task.Status)),
			logging.Float64("progress", *cb.ProgressPercent))
	}
	return nil
}

func (r *Receiver) applyCompleted(ctx context.Context, task *queue.Task, cb StatusCallback) error {
	if task.IsTerminal() {
		// Late or duplicate terminal report; the task already resolved
		// and nothing may be re-applied.
		r.logger.Info("completion callback for terminal task ignored",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldStatus, string(task.Status)))
		return nil
	}
	if task.Status == queue.StatusPending {
		// The reconciler already requeued this task; the channel this
		// callback arrived on is stale.
		return fmt.Errorf("completion for task %d in status %s: %w", task.ID, task.Status, queue.ErrStaleChannel)
	}
	if strings.TrimSpace(cb.ArtifactFile) == "" || cb.SizeBytes <= 0 {
		return fmt.Errorf("completion for task %d missing artifact metadata: %w", task.ID, queue.ErrInvalidStatus)
	}

	if task.Status == queue.StatusSent {
		// Workers on short inputs may finish before the processing
		// callback lands. Promote first so the completion guard holds.
		if err := r.store.MarkProcessing(ctx, task.ID, cb.WorkerID); err != nil {
			return err
		}
	}

	finalFile, err := r.relocator.Relocate(ctx, task, cb.ArtifactFile)
	if err != nil {
		// Relocation failure converts the completion into a task failure
		// under the normal retry policy.
		return r.failTask(ctx, task, fmt.Sprintf("relocation failed: %v", err))
	}

	if err := r.store.MarkCompleted(ctx, task.ID, cb.ArtifactFile, finalFile, cb.SizeBytes, cb.ProcessingSeconds); err != nil {
		return err
	}
	telemetry.TasksCompleted.Inc()
	r.logger.Info("task completed",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskName, task.Name),
		logging.String("final_file", finalFile),
		logging.Int64("size_bytes", cb.SizeBytes))

	if r.notifier != nil {
		if err := r.notifier.NotifyTaskCompleted(ctx, task.Name, finalFile, cb.ProcessingSeconds); err != nil {
			r.logger.Warn("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

func (r *Receiver) applyFailed(ctx context.Context, task *queue.Task, cb StatusCallback) error {
	if task.IsTerminal() {
		// Duplicate or late failure report.
		r.logger.Info("failure callback for terminal task ignored",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldStatus, string(task.Status)))
		return nil
	}
	if task.Status == queue.StatusPending {
		return fmt.Errorf("failure for task %d in status %s: %w", task.ID, task.Status, queue.ErrStaleChannel)
	}
	reason := strings.TrimSpace(cb.Error)
	if reason == "" {
		reason = "worker reported failure"
	}
	return r.failTask(ctx, task, reason)
}

func (r *Receiver) failTask(ctx context.Context, task *queue.Task, reason string) error {
	resolved, err := r.store.RecordFailure(ctx, task.ID, reason, r.cfg.Workflow.MaxAttempts)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			// Another actor resolved the task first.
			return nil
		}
		return err
	}
	telemetry.TasksFailed.Inc()
	r.logger.Warn("task attempt failed",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskName, task.Name),
		logging.Int("attempts", resolved.Attempts),
		logging.String(logging.FieldStatus, string(resolved.Status)),
		logging.String("reason", reason))

	if resolved.Status == queue.StatusFailed && r.notifier != nil {
		if err := r.notifier.NotifyTaskFailed(ctx, task.Name, reason, resolved.Attempts); err != nil {
			r.logger.Warn("failure notification failed", logging.Error(err))
		}
	}
	return nil
}
