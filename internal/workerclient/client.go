package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"remuxd/internal/config"
	"remuxd/internal/logging"
)

// ErrBusy reports that the worker refused a dispatch because it is at
// capacity. Busy is a normal condition, not a task failure.
var ErrBusy = errors.New("worker busy")

// DispatchRequest is the payload handed to the worker to start a remux.
type DispatchRequest struct {
	TaskID      int64  `json:"task_id"`
	Name        string `json:"name"`
	SourcePath  string `json:"source_path"`
	Priority    int    `json:"priority"`
	CallbackURL string `json:"callback_url,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// Health is the worker's self-reported state.
type Health struct {
	Status      string `json:"status"`
	ActiveTasks int    `json:"active_tasks"`
	Version     string `json:"version,omitempty"`
}

// Client talks to the remux worker's HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a worker client from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Worker.BaseURL, "/"),
		token:      cfg.Worker.Token,
		httpClient: &http.Client{Timeout: cfg.WorkerRequestTimeout()},
		logger:     logging.NewComponentLogger(logger, "workerclient"),
	}
}

// Dispatch asks the worker to begin processing a task. Returns ErrBusy
// when the worker answers 429.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/process", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch task %d: %w", req.TaskID, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrBusy
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("task dispatched",
			logging.Int64(logging.FieldTaskID, req.TaskID),
			logging.String(logging.FieldTaskName, req.Name))
		return nil
	default:
		return fmt.Errorf("dispatch task %d: worker returned %s: %s", req.TaskID, resp.Status, readErrorBody(resp.Body))
	}
}

// Cancel asks the worker to abandon a task it previously accepted. A 404
// from the worker is treated as success; the work is already gone.
func (c *Client) Cancel(ctx context.Context, taskID int64) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/process/%d", c.baseURL, taskID), nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cancel task %d: %w", taskID, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("cancel task %d: worker returned %s: %s", taskID, resp.Status, readErrorBody(resp.Body))
}

// Health fetches the worker's health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker health: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("worker health: worker returned %s", resp.Status)
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode worker health: %w", err)
	}
	return &health, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(data) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(data))
}
