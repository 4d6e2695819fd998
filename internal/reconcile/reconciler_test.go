package reconcile_test

import (
	"context"
	"testing"

	"remuxd/internal/logging"
	"remuxd/internal/queue"
	"remuxd/internal/reconcile"
	"remuxd/internal/testsupport"
)

type offlineNotifier struct {
	requeued []int64
}

func (o *offlineNotifier) NotifyTaskQueued(context.Context, string) error { return nil }

func (o *offlineNotifier) NotifyTaskCompleted(context.Context, string, string, float64) error {
	return nil
}

func (o *offlineNotifier) NotifyTaskFailed(context.Context, string, string, int) error { return nil }

func (o *offlineNotifier) NotifyWorkerOffline(_ context.Context, requeued int64) error {
	o.requeued = append(o.requeued, requeued)
	return nil
}

func (o *offlineNotifier) NotifyError(context.Context, error, string) error { return nil }

func (o *offlineNotifier) TestNotification(context.Context) error { return nil }

func TestSweepLeavesFreshTasksAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "Movie A", "/share/Movie A", 5)
	if err := store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	reconciler := reconcile.New(cfg, store, nil, logging.NewNop())
	requeued, err := reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if requeued != 0 {
		t.Fatalf("requeued = %d, want 0", requeued)
	}

	updated, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusSent {
		t.Fatalf("status = %s, want sent", updated.Status)
	}
}

func TestSweepRequeuesStaleWithoutChargingAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// A negative threshold puts the cutoff in the future, so even a
	// freshly touched row counts as stale.
	cfg.Workflow.StaleAfter = -1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "Movie B", "/share/Movie B", 5)
	if err := store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := store.MarkProcessing(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if _, err := store.UpdateProgress(ctx, task.ID, 35); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	reconciler := reconcile.New(cfg, store, nil, logging.NewNop())
	requeued, err := reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}

	updated, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", updated.Status)
	}
	if updated.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", updated.Attempts)
	}
	if updated.WorkerID != "" {
		t.Fatalf("worker_id = %q, want empty", updated.WorkerID)
	}
	if updated.ProgressPercent != 0 {
		t.Fatalf("progress = %v, want 0", updated.ProgressPercent)
	}
	if updated.ErrorMessage != "" {
		t.Fatalf("error_message = %q, want empty", updated.ErrorMessage)
	}
}

func TestCleanupRemovesOnlyOldTerminalRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// Future cutoff so every terminal record qualifies.
	cfg.Workflow.RetentionDays = -1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewTask(t, store, "Done", "/share/Done", 5)
	if err := store.MarkSent(ctx, done.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := store.MarkProcessing(ctx, done.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkCompleted(ctx, done.ID, "a.mkv", "/library/Done.mkv", 1024, 60); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	active := testsupport.NewTask(t, store, "Active", "/share/Active", 5)
	if err := store.MarkSent(ctx, active.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	reconciler := reconcile.New(cfg, store, nil, logging.NewNop())
	removed, err := reconciler.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	gone, err := store.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gone != nil {
		t.Fatal("expected completed record to be removed")
	}
	kept, err := store.GetByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if kept == nil {
		t.Fatal("expected in-flight record to survive cleanup")
	}
}

func TestHandleWorkerShutdownRequeuesAndNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "Movie A", "/share/Movie A", 5)
	if err := store.MarkSent(ctx, first.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	second := testsupport.NewTask(t, store, "Movie B", "/share/Movie B", 5)
	if err := store.MarkSent(ctx, second.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := store.MarkProcessing(ctx, second.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	notifier := &offlineNotifier{}
	reconciler := reconcile.New(cfg, store, notifier, logging.NewNop())
	requeued, err := reconciler.HandleWorkerShutdown(ctx)
	if err != nil {
		t.Fatalf("HandleWorkerShutdown: %v", err)
	}
	if requeued != 2 {
		t.Fatalf("requeued = %d, want 2", requeued)
	}
	if len(notifier.requeued) != 1 || notifier.requeued[0] != 2 {
		t.Fatalf("offline notifications = %v, want [2]", notifier.requeued)
	}

	for _, id := range []int64{first.ID, second.ID} {
		updated, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Status != queue.StatusPending {
			t.Fatalf("task %d status = %s, want pending", id, updated.Status)
		}
	}
}
