package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"remuxd/internal/api"
	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/queue"
	"remuxd/internal/reconcile"
	"remuxd/internal/scanner"
	"remuxd/internal/testsupport"
	"remuxd/internal/webhook"
	"remuxd/internal/workerclient"
)

type fakeWorker struct {
	cancelled []int64
	healthErr error
}

func (f *fakeWorker) Cancel(_ context.Context, taskID int64) error {
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeWorker) Health(context.Context) (*workerclient.Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &workerclient.Health{Status: "ok"}, nil
}

type env struct {
	cfg    *config.Config
	store  *queue.Store
	worker *fakeWorker
	server *httptest.Server
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	notifier := notifications.NewService(cfg)
	worker := &fakeWorker{}

	receiver := webhook.NewReceiver(cfg, store, nil, notifier, logger)
	reconciler := reconcile.New(cfg, store, notifier, logger)
	shareScanner := scanner.New(cfg, store, notifier, logger)

	server := httptest.NewServer(api.New(cfg, store, receiver, reconciler, shareScanner, worker, notifier, logger).Router())
	t.Cleanup(server.Close)

	return &env{cfg: cfg, store: store, worker: worker, server: server}
}

func (e *env) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token := e.cfg.Paths.APIToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestBearerAuthGuardsAPI(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "sekrit"
	})

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/tasks", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = e.request(t, http.MethodGet, "/api/tasks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", resp.StatusCode)
	}
}

func TestListAndGetTasks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 7)
	testsupport.NewTask(t, e.store, "Movie B", "/share/Movie B", 3)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	resp := e.request(t, http.MethodGet, "/api/tasks?status=sent", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	listing := decode[map[string][]api.TaskView](t, resp)
	if len(listing["tasks"]) != 1 || listing["tasks"][0].Name != "Movie A" {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	resp = e.request(t, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	view := decode[api.TaskView](t, resp)
	if view.Status != "sent" || view.WorkerID != "worker-1" {
		t.Fatalf("unexpected view: %+v", view)
	}

	resp = e.request(t, http.MethodGet, "/api/tasks/999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task status = %d, want 404", resp.StatusCode)
	}
	apiErr := decode[struct {
		Error     string `json:"error"`
		Retryable *bool  `json:"retryable"`
	}](t, resp)
	if apiErr.Retryable == nil || *apiErr.Retryable {
		t.Fatalf("missing task must be flagged non-retryable, got %+v", apiErr)
	}

	resp = e.request(t, http.MethodGet, "/api/tasks?status=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", resp.StatusCode)
	}
}

func TestRestartOnlyFromTerminalStates(t *testing.T) {
	e := newEnv(t)
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)

	resp := e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/restart", task.ID), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("restart pending status = %d, want 409", resp.StatusCode)
	}

	ctx := context.Background()
	for i := 0; i < e.cfg.Workflow.MaxAttempts; i++ {
		if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
			t.Fatalf("MarkSent: %v", err)
		}
		if _, err := e.store.RecordFailure(ctx, task.ID, "boom", e.cfg.Workflow.MaxAttempts); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/restart", task.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restart failed-task status = %d, want 200", resp.StatusCode)
	}

	updated, err := e.store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusPending || updated.Attempts != 0 {
		t.Fatalf("after restart: status=%s attempts=%d", updated.Status, updated.Attempts)
	}
}

func TestDeleteRefusesProcessing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := e.store.MarkProcessing(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	resp := e.request(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("delete processing status = %d, want 400", resp.StatusCode)
	}
}

func TestClearRemovesAllTasks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)
	task := testsupport.NewTask(t, e.store, "Movie B", "/share/Movie B", 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	resp := e.request(t, http.MethodDelete, "/api/tasks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decode[map[string]int64](t, resp)
	if result["removed"] != 2 {
		t.Fatalf("removed = %d, want 2", result["removed"])
	}

	summary, err := e.store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("total after clear = %d, want 0", summary.Total)
	}
}

func TestSetPriorityValidatesRange(t *testing.T) {
	e := newEnv(t)
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)

	resp := e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/priority", task.ID), map[string]int{"priority": 99})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range status = %d, want 400", resp.StatusCode)
	}

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/priority", task.ID), map[string]int{"priority": 9})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, err := e.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Priority != 9 {
		t.Fatalf("priority = %d, want 9", updated.Priority)
	}
}

func TestCancelSignalsWorkerAndFailsTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := e.store.MarkProcessing(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	resp := e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/cancel", task.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(e.worker.cancelled) != 1 || e.worker.cancelled[0] != task.ID {
		t.Fatalf("worker cancels = %v", e.worker.cancelled)
	}

	updated, err := e.store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", updated.Status)
	}

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/cancel", task.ID), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel terminal status = %d, want 409", resp.StatusCode)
	}
}

func TestStatusCallbackDrivesCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie A", filepath.Join(e.cfg.Paths.ShareRoot, "Movie A"), 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(e.cfg.Paths.ShareRoot, "staging", "movie-a.mkv"), 2048)

	resp := e.request(t, http.MethodPost, "/api/webhook/status", webhook.StatusCallback{
		TaskID:            task.ID,
		Status:            "completed",
		ArtifactFile:      filepath.Join("staging", "movie-a.mkv"),
		SizeBytes:         2048,
		ProcessingSeconds: 99,
		WorkerID:          "worker-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, err := e.store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}
	if _, err := os.Stat(updated.FinalFile); err != nil {
		t.Fatalf("final file missing: %v", err)
	}
}

func TestStatusCallbackStaleChannelAnswers409(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie B", "/share/Movie B", 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if _, err := e.store.RequeueInFlight(ctx); err != nil {
		t.Fatalf("RequeueInFlight: %v", err)
	}

	resp := e.request(t, http.MethodPost, "/api/webhook/status", webhook.StatusCallback{
		TaskID:       task.ID,
		Status:       "completed",
		ArtifactFile: "staging/movie-b.mkv",
		SizeBytes:    1024,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	updated, err := e.store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", updated.Status)
	}
}

func TestWorkerLifecycleWebhooksRequeue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := testsupport.NewTask(t, e.store, "Movie A", "/share/Movie A", 5)
	if err := e.store.MarkSent(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	resp := e.request(t, http.MethodPost, "/api/webhook/worker/startup", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decode[map[string]int64](t, resp)
	if result["requeued"] != 1 {
		t.Fatalf("requeued = %d, want 1", result["requeued"])
	}
}

func TestScanReconcileCleanupAndHealth(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Scanner.MinSizeMB = 0
	})
	testsupport.WriteBDMV(t, filepath.Join(e.cfg.Paths.ShareRoot, "Movie A"), 4096)

	resp := e.request(t, http.MethodPost, "/api/scan", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan status = %d, want 200", resp.StatusCode)
	}
	scanResult := decode[map[string]int](t, resp)
	if scanResult["created"] != 1 {
		t.Fatalf("created = %d, want 1", scanResult["created"])
	}

	resp = e.request(t, http.MethodPost, "/api/reconcile", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile status = %d, want 200", resp.StatusCode)
	}
	resp = e.request(t, http.MethodPost, "/api/cleanup", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status = %d, want 200", resp.StatusCode)
	}

	resp = e.request(t, http.MethodGet, "/api/statistics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics status = %d, want 200", resp.StatusCode)
	}

	resp = e.request(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["pending"].(float64) != 1 {
		t.Fatalf("health pending = %v, want 1", health["pending"])
	}
	if health["worker_online"] != true {
		t.Fatalf("worker_online = %v, want true", health["worker_online"])
	}
}

func TestMetricsEndpointIsUnauthenticated(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "sekrit"
	})

	resp, err := http.Get(e.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
