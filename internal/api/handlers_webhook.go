package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"remuxd/internal/logging"
	"remuxd/internal/queue"
	"remuxd/internal/webhook"
)

func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	var cb webhook.StatusCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	if err := s.receiver.Apply(r.Context(), cb); err != nil {
		if errors.Is(err, queue.ErrStaleChannel) {
			// The task moved on while this callback was in flight. Tell
			// the worker to stop without treating it as a server fault.
			s.logger.Warn("stale status callback ignored",
				logging.Int64(logging.FieldTaskID, cb.TaskID),
				logging.String(logging.FieldStatus, cb.Status))
			writeJSON(w, http.StatusConflict, map[string]string{"result": "stale"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) handleWorkerStartup(w http.ResponseWriter, r *http.Request) {
	requeued, err := s.reconciler.HandleWorkerStartup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": requeued})
}

func (s *Server) handleWorkerShutdown(w http.ResponseWriter, r *http.Request) {
	requeued, err := s.reconciler.HandleWorkerShutdown(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": requeued})
}
