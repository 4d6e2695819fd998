package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"remuxd/internal/dispatch"
	"remuxd/internal/queue"
	"remuxd/internal/testsupport"
	"remuxd/internal/workerclient"
)

type fakeClient struct {
	requests []workerclient.DispatchRequest
	err      error
}

func (f *fakeClient) Dispatch(_ context.Context, req workerclient.DispatchRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func TestDispatchNextSendsHighestPriorityPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	d := dispatch.New(cfg, store, client, nil, nil)

	ctx := context.Background()
	testsupport.NewTask(t, store, "Low", "/share/low", 1)
	high := testsupport.NewTask(t, store, "High", "/share/high", 9)

	dispatched, err := d.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if !dispatched {
		t.Fatal("expected a task to be dispatched")
	}
	if len(client.requests) != 1 || client.requests[0].TaskID != high.ID {
		t.Fatalf("expected high priority task dispatched, got %#v", client.requests)
	}
	if client.requests[0].RequestID == "" {
		t.Fatal("expected request id on dispatch payload")
	}
	if client.requests[0].CallbackURL == "" {
		t.Fatal("expected callback URL on dispatch payload")
	}

	updated, err := store.GetByID(ctx, high.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusSent {
		t.Fatalf("expected sent, got %s", updated.Status)
	}
	if updated.Attempts != 0 {
		t.Fatalf("successful dispatch must not charge attempts, got %d", updated.Attempts)
	}
}

func TestDispatchNextRespectsCapacityGuard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.MaxConcurrent = 1
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	d := dispatch.New(cfg, store, client, nil, nil)

	ctx := context.Background()
	busy := testsupport.NewTask(t, store, "Busy", "/share/busy", 0)
	if err := store.MarkSent(ctx, busy.ID, "worker"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	testsupport.NewTask(t, store, "Waiting", "/share/waiting", 0)

	dispatched, err := d.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if dispatched {
		t.Fatal("expected no dispatch while worker at capacity")
	}
	if len(client.requests) != 0 {
		t.Fatalf("expected no worker calls, got %d", len(client.requests))
	}
}

func TestDispatchNextIdleQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	d := dispatch.New(cfg, store, client, nil, nil)

	dispatched, err := d.DispatchNext(context.Background())
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if dispatched {
		t.Fatal("expected nothing dispatched from empty queue")
	}
}

func TestDispatchBusyChargesAttemptWithoutCycleError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{err: workerclient.ErrBusy}
	d := dispatch.New(cfg, store, client, nil, nil)

	ctx := context.Background()
	task := testsupport.NewTask(t, store, "Movie", "/share/movie", 0)

	dispatched, err := d.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("busy worker must not fail the cycle, got %v", err)
	}
	if dispatched {
		t.Fatal("expected no dispatch on busy worker")
	}

	updated, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected requeue to pending, got %s", updated.Status)
	}
	if updated.Attempts != 1 {
		t.Fatalf("expected 1 attempt charged, got %d", updated.Attempts)
	}
}

func TestDispatchFailureExhaustsBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{err: errors.New("connection refused")}
	d := dispatch.New(cfg, store, client, nil, nil)

	ctx := context.Background()
	task := testsupport.NewTask(t, store, "Movie", "/share/movie", 0)

	for i := 0; i < 2; i++ {
		if _, err := d.DispatchNext(ctx); !errors.Is(err, queue.ErrDispatchFailure) {
			t.Fatalf("expected ErrDispatchFailure, got %v", err)
		}
	}

	final, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected failed after budget spent, got %s", final.Status)
	}
	if final.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", final.Attempts)
	}

	// The terminal task must not be retried again.
	dispatched, err := d.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if dispatched || len(client.requests) != 2 {
		t.Fatalf("terminal task must not redispatch, calls=%d", len(client.requests))
	}
}
