package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"remuxd/internal/config"
	"remuxd/internal/telemetry"
)

const userAgent = "remuxd/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyTaskQueued(ctx context.Context, name string) error
	NotifyTaskCompleted(ctx context.Context, name, finalFile string, processingSeconds float64) error
	NotifyTaskFailed(ctx context.Context, name, reason string, attempts int) error
	NotifyWorkerOffline(ctx context.Context, requeued int64) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:         topic,
		client:           &http.Client{Timeout: timeout},
		notifyCompletion: cfg.Notifications.Completion,
		notifyErrors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint         string
	client           *http.Client
	notifyCompletion bool
	notifyErrors     bool
}

func (n *ntfyService) NotifyTaskQueued(ctx context.Context, name string) error {
	data := payload{
		title:   "remuxd - Queued",
		message: fmt.Sprintf("Queued for remux: %s", strings.TrimSpace(name)),
		tags:    []string{"remuxd", "queue"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, name, finalFile string, processingSeconds float64) error {
	if !n.notifyCompletion {
		return nil
	}
	message := fmt.Sprintf("Remux complete: %s", strings.TrimSpace(name))
	if finalFile = strings.TrimSpace(finalFile); finalFile != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, finalFile)
	}
	if processingSeconds > 0 {
		message = fmt.Sprintf("%s\nTook %s", message, (time.Duration(processingSeconds) * time.Second).String())
	}
	data := payload{
		title:    "remuxd - Complete",
		message:  message,
		tags:     []string{"remuxd", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, name, reason string, attempts int) error {
	if !n.notifyErrors {
		return nil
	}
	message := fmt.Sprintf("Remux failed after %d attempts: %s", attempts, strings.TrimSpace(name))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "remuxd - Failed",
		message:  message,
		tags:     []string{"remuxd", "failed", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkerOffline(ctx context.Context, requeued int64) error {
	if !n.notifyErrors {
		return nil
	}
	data := payload{
		title:   "remuxd - Worker Offline",
		message: fmt.Sprintf("Worker went offline; %d in-flight tasks returned to the queue", requeued),
		tags:    []string{"remuxd", "worker", "offline"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.notifyErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "remuxd - Error",
		message:  builder.String(),
		tags:     []string{"remuxd", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "remuxd - Test",
		message:  "Notification system test",
		tags:     []string{"remuxd", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	telemetry.NotificationsSent.Inc()
	return nil
}

type noopService struct{}

func (noopService) NotifyTaskQueued(context.Context, string) error                     { return nil }
func (noopService) NotifyTaskCompleted(context.Context, string, string, float64) error { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string, int) error        { return nil }
func (noopService) NotifyWorkerOffline(context.Context, int64) error                   { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
