package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/queue"
	"remuxd/internal/reconcile"
	"remuxd/internal/scanner"
	"remuxd/internal/telemetry"
	"remuxd/internal/webhook"
	"remuxd/internal/workerclient"
)

// WorkerClient is the slice of the worker API the admin surface needs.
// Satisfied by *workerclient.Client.
type WorkerClient interface {
	Cancel(ctx context.Context, taskID int64) error
	Health(ctx context.Context) (*workerclient.Health, error)
}

// Server wires the HTTP surface: the worker-facing webhook routes plus
// the operator admin API and Prometheus metrics.
type Server struct {
	cfg        *config.Config
	store      *queue.Store
	receiver   *webhook.Receiver
	reconciler *reconcile.Reconciler
	scanner    *scanner.Scanner
	worker     WorkerClient
	notifier   notifications.Service
	logger     *slog.Logger
}

// New constructs the API server. The scanner may be nil when disabled.
func New(cfg *config.Config, store *queue.Store, receiver *webhook.Receiver, reconciler *reconcile.Reconciler, shareScanner *scanner.Scanner, worker WorkerClient, notifier notifications.Service, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		receiver:   receiver,
		reconciler: reconciler,
		scanner:    shareScanner,
		worker:     worker,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.Paths.APIToken))

		r.Post("/webhook/status", s.handleStatusCallback)
		r.Post("/webhook/worker/startup", s.handleWorkerStartup)
		r.Post("/webhook/worker/shutdown", s.handleWorkerShutdown)

		r.Get("/tasks", s.handleListTasks)
		r.Delete("/tasks", s.handleClearTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Post("/tasks/{id}/restart", s.handleRestartTask)
		r.Delete("/tasks/{id}", s.handleDeleteTask)
		r.Post("/tasks/{id}/priority", s.handleSetPriority)
		r.Post("/tasks/{id}/cancel", s.handleCancelTask)

		r.Post("/scan", s.handleScan)
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/health", s.handleHealth)
		r.Post("/notifications/test", s.handleTestNotification)
	})

	return r
}
