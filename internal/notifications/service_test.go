package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"remuxd/internal/config"
	"remuxd/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTaskCompleted(context.Background(), "Example", "", 0); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func TestNtfyServiceFormatsMessages(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyTaskCompleted(ctx, "Interstellar", "/library/Interstellar.mkv", 320); err != nil {
		t.Fatalf("NotifyTaskCompleted failed: %v", err)
	}
	if err := svc.NotifyTaskFailed(ctx, "Blade Runner", "remux crashed", 3); err != nil {
		t.Fatalf("NotifyTaskFailed failed: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("share unreachable"), "scanner"); err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}

	if len(sink) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(sink))
	}

	done := sink[0]
	if done.title != "remuxd - Complete" {
		t.Errorf("unexpected title: %q", done.title)
	}
	if !strings.Contains(done.body, "Interstellar") || !strings.Contains(done.body, "/library/Interstellar.mkv") {
		t.Errorf("unexpected body: %q", done.body)
	}
	if done.priority != "high" {
		t.Errorf("expected high priority, got %q", done.priority)
	}

	failed := sink[1]
	if !strings.Contains(failed.body, "after 3 attempts") || !strings.Contains(failed.body, "remux crashed") {
		t.Errorf("unexpected failure body: %q", failed.body)
	}

	errored := sink[2]
	if !strings.Contains(errored.body, "scanner") || !strings.Contains(errored.body, "share unreachable") {
		t.Errorf("unexpected error body: %q", errored.body)
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completion = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyTaskCompleted(ctx, "Movie", "", 0); err != nil {
		t.Fatalf("NotifyTaskCompleted failed: %v", err)
	}
	if err := svc.NotifyTaskFailed(ctx, "Movie", "boom", 1); err != nil {
		t.Fatalf("NotifyTaskFailed failed: %v", err)
	}
	if len(sink) != 0 {
		t.Fatalf("expected suppressed notifications, got %d", len(sink))
	}

	// Queue notifications have no toggle.
	if err := svc.NotifyTaskQueued(ctx, "Movie"); err != nil {
		t.Fatalf("NotifyTaskQueued failed: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected queued notification, got %d", len(sink))
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
