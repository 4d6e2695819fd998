package api

import (
	"net/http"
	"time"

	"remuxd/internal/logging"
)

// statisticsWindow is the trailing window for throughput aggregates.
const statisticsWindow = 30 * 24 * time.Hour

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "scanner disabled"})
		return
	}
	result, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"scanned": result.Scanned,
		"created": result.Created,
		"skipped": result.Skipped,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	requeued, err := s.reconciler.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": requeued})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.reconciler.Cleanup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context(), statisticsWindow)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsView(stats))
}

type healthResponse struct {
	Status       string `json:"status"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	InFlight     int    `json:"in_flight"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	WorkerOnline bool   `json:"worker_online"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	workerOnline := false
	if s.worker != nil {
		if _, err := s.worker.Health(r.Context()); err == nil {
			workerOnline = true
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Total:        summary.Total,
		Pending:      summary.Pending,
		InFlight:     summary.InFlight,
		Completed:    summary.Completed,
		Failed:       summary.Failed,
		WorkerOnline: workerOnline,
	})
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "notifications disabled"})
		return
	}
	if err := s.notifier.TestNotification(r.Context()); err != nil {
		s.logger.Warn("test notification failed", logging.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "sent"})
}
