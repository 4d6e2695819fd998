package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"remuxd/internal/queue"
)

type errorResponse struct {
	Error string `json:"error"`
	// Retryable tells the CLI whether repeating the request could help.
	// Unset on ad-hoc errors that carry no taxonomy marker.
	Retryable *bool `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the queue error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	retryable := queue.Retryable(err)
	writeJSON(w, statusForError(err), errorResponse{Error: err.Error(), Retryable: &retryable})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, queue.ErrStaleChannel):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
