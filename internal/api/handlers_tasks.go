package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"remuxd/internal/logging"
	"remuxd/internal/queue"
)

const defaultListLimit = 50

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(part)
			if !ok {
				writeError(w, fmt.Errorf("unknown status %q: %w", part, queue.ErrInvalidStatus))
				return
			}
			statuses = append(statuses, status)
		}
	}

	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	tasks, err := s.store.List(r.Context(), statuses, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": taskViews(tasks)})
}

func (s *Server) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.Clear(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Warn("task queue cleared", logging.Int64("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if task == nil {
		writeError(w, fmt.Errorf("task %d: %w", id, queue.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, taskView(task))
}

func (s *Server) handleRestartTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.store.ResetForRestart(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("task restarted", logging.Int64(logging.FieldTaskID, id))
	writeJSON(w, http.StatusOK, map[string]string{"result": "restarted"})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("task deleted", logging.Int64(logging.FieldTaskID, id))
	writeJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if req.Priority < 0 || req.Priority > 10 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "priority must be between 0 and 10"})
		return
	}
	if err := s.store.SetPriority(r.Context(), id, req.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "updated"})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if task == nil {
		writeError(w, fmt.Errorf("task %d: %w", id, queue.ErrNotFound))
		return
	}
	if task.IsTerminal() {
		writeError(w, fmt.Errorf("task %d is already %s: %w", id, task.Status, queue.ErrInvalidTransition))
		return
	}

	if task.IsInFlight() && s.worker != nil {
		// Best effort; the failure transition below stands either way.
		if err := s.worker.Cancel(r.Context(), id); err != nil {
			s.logger.Warn("worker cancel signal failed",
				logging.Int64(logging.FieldTaskID, id),
				logging.Error(err))
		}
	}

	// A budget of one makes the failure terminal regardless of the
	// remaining retry allowance.
	if _, err := s.store.RecordFailure(r.Context(), id, "cancelled by operator", 1); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("task cancelled", logging.Int64(logging.FieldTaskID, id))
	writeJSON(w, http.StatusOK, map[string]string{"result": "cancelled"})
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
