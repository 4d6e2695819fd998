package testsupport

import (
	"context"
	"testing"

	"remuxd/internal/config"
	"remuxd/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, name, sourcePath string, priority int) *queue.Task {
	t.Helper()

	task, err := store.Create(context.Background(), name, sourcePath, priority)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return task
}
