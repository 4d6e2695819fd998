package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MarkSent moves a pending task to sent after a successful dispatch
// handoff. Only pending tasks are eligible.
func (s *Store) MarkSent(ctx context.Context, id int64, workerID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET status = ?, worker_id = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusSent), nullableString(workerID), now, id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("mark task %d sent: %w", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusSent, []Status{StatusPending})
}

// MarkProcessing records that the worker has begun work on a task. The
// transition is idempotent for tasks already processing, and the start
// timestamp is only stamped once.
func (s *Store) MarkProcessing(ctx context.Context, id int64, workerID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET status = ?,
		    worker_id = COALESCE(?, worker_id),
		    processing_started_at = COALESCE(processing_started_at, ?),
		    error_message = NULL,
		    updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(StatusProcessing), nullableString(workerID), now, now,
		id, string(StatusPending), string(StatusSent), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark task %d processing: %w", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing, []Status{StatusPending, StatusSent, StatusProcessing})
}

// UpdateProgress stores a progress report. Reports are only applied
// while the task is processing; the boolean result tells the caller
// whether the report landed so stale reports can be logged and dropped.
func (s *Store) UpdateProgress(ctx context.Context, id int64, percent float64) (bool, error) {
	ctx = ensureContext(ctx)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET progress_percent = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		percent, now, id, string(StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("update task %d progress: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task %d progress: %w", id, err)
	}
	return affected > 0, nil
}

// MarkCompleted finalizes a processing task with its artifact details.
// A repeated completion for an already completed task is a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id int64, artifactFile, finalFile string, sizeBytes int64, processingSeconds float64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET status = ?,
		    artifact_file = ?,
		    final_file = ?,
		    file_size_bytes = ?,
		    processing_seconds = ?,
		    progress_percent = 100,
		    error_message = NULL,
		    processing_completed_at = COALESCE(processing_completed_at, ?),
		    updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCompleted), nullableString(artifactFile), nullableString(finalFile),
		sizeBytes, processingSeconds, now, now, id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark task %d completed: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark task %d completed: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if task.Status == StatusCompleted {
		// Duplicate completion callback; nothing to change.
		return nil
	}
	return fmt.Errorf("task %d is %s, expected %s: %w", id, task.Status, statusList([]Status{StatusProcessing}), ErrInvalidTransition)
}

// RecordFailure charges a failed attempt against a task and resolves it
// to pending for another try, or to failed once maxAttempts is spent.
// The task passes through retrying inside the transaction so readers of
// the audit trail see the bookkeeping state, but it is never left there.
func (s *Store) RecordFailure(ctx context.Context, id int64, errorMessage string, maxAttempts int) (*Task, error) {
	ctx = ensureContext(ctx)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var final *Task
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin failure tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
		task, err := scanTask(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("load task %d: %w", id, err)
		}
		if task.IsTerminal() {
			return fmt.Errorf("task %d is %s: %w", id, task.Status, ErrInvalidTransition)
		}

		now := time.Now().UTC().Format(timestampFormat)
		attempts := task.Attempts + 1
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = ?, attempts = ?, error_message = ?, updated_at = ?
			WHERE id = ?`,
			string(StatusRetrying), attempts, nullableString(errorMessage), now, id); err != nil {
			return fmt.Errorf("record task %d failure: %w", id, err)
		}

		resolved := StatusPending
		if attempts >= maxAttempts {
			resolved = StatusFailed
		}
		query := `
			UPDATE tasks
			SET status = ?, worker_id = NULL, progress_percent = 0, updated_at = ?
			WHERE id = ?`
		if resolved == StatusFailed {
			query = `
			UPDATE tasks
			SET status = ?, worker_id = NULL,
			    processing_completed_at = COALESCE(processing_completed_at, ?),
			    updated_at = ?
			WHERE id = ?`
		}
		args := []any{string(resolved), now, id}
		if resolved == StatusFailed {
			args = []any{string(resolved), now, now, id}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("resolve task %d failure: %w", id, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit failure tx: %w", err)
		}

		task.Status = resolved
		task.Attempts = attempts
		task.ErrorMessage = errorMessage
		task.WorkerID = ""
		if resolved == StatusPending {
			task.ProgressPercent = 0
		}
		final = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// RequeueStale returns in-flight tasks whose last update predates the
// cutoff to the pending pool. Attempts are untouched; a stalled handoff
// is not the task's fault.
func (s *Store) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET status = ?, worker_id = NULL, progress_percent = 0, error_message = NULL, updated_at = ?
		WHERE status IN (?, ?) AND updated_at < ?`,
		string(StatusPending), now,
		string(StatusSent), string(StatusProcessing),
		cutoff.UTC().Format(timestampFormat))
	if err != nil {
		return 0, fmt.Errorf("requeue stale tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale tasks: %w", err)
	}
	return affected, nil
}

// RequeueInFlight returns every sent or processing task to pending.
// Used when the worker announces a shutdown and its in-flight work is
// known to be abandoned.
func (s *Store) RequeueInFlight(ctx context.Context) (int64, error) {
	return s.RequeueStale(ctx, time.Now().UTC().Add(time.Second))
}

// ResetForRestart returns a terminal task to pending with a clean
// slate: attempts, progress, error details, and artifact references are
// all cleared.
func (s *Store) ResetForRestart(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		UPDATE tasks
		SET status = ?, attempts = 0, error_message = NULL, progress_percent = 0,
		    artifact_file = NULL, final_file = NULL, file_size_bytes = 0,
		    processing_seconds = 0, worker_id = NULL,
		    processing_started_at = NULL, processing_completed_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusPending), now, id,
		string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return fmt.Errorf("restart task %d: %w", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusPending, []Status{StatusCompleted, StatusFailed})
}

// SetPriority adjusts a task's dispatch priority.
func (s *Store) SetPriority(ctx context.Context, id int64, priority int) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx,
		"UPDATE tasks SET priority = ?, updated_at = ? WHERE id = ?",
		priority, now, id)
	if err != nil {
		return fmt.Errorf("set task %d priority: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set task %d priority: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// ResetAttempts zeroes the attempt counter without touching status.
func (s *Store) ResetAttempts(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx,
		"UPDATE tasks SET attempts = 0, updated_at = ? WHERE id = ?",
		now, id)
	if err != nil {
		return fmt.Errorf("reset task %d attempts: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset task %d attempts: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementAttempts charges one attempt against a task without moving
// it through the failure path. Administrative counterpart to
// ResetAttempts; the retry machinery charges attempts on its own via
// RecordFailure.
func (s *Store) IncrementAttempts(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(timestampFormat)
	res, err := s.execWithRetry(ctx,
		"UPDATE tasks SET attempts = attempts + 1, updated_at = ? WHERE id = ?",
		now, id)
	if err != nil {
		return fmt.Errorf("increment task %d attempts: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment task %d attempts: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a task. Processing tasks are protected; cancel the
// work on the worker first.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		"DELETE FROM tasks WHERE id = ? AND status != ?",
		id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("task %d is processing: %w", id, ErrInvalidStatus)
}

func (s *Store) requireTransition(ctx context.Context, res sql.Result, id int64, target Status, expected []Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task %d transition to %s: %w", id, target, err)
	}
	if affected > 0 {
		return nil
	}

	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("task %d is %s, expected %s: %w", id, task.Status, statusList(expected), ErrInvalidTransition)
}
