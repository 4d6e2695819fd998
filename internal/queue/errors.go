package queue

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the task error taxonomy. Callers converting
// external failures into task state must wrap one of these so the API layer
// and CLI can decide whether a retry can help.
var (
	// ErrDuplicateName indicates a creation conflict; retrying without
	// renaming the source folder cannot succeed.
	ErrDuplicateName = errors.New("task name already exists")

	// ErrNotFound indicates an unknown task id; the rejection is permanent.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidStatus indicates a status value outside the known set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition indicates a request that does not apply to the
	// task's current state, such as deleting a processing task.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDispatchFailure indicates the worker could not accept a task;
	// transient, bounded by the attempts policy.
	ErrDispatchFailure = errors.New("dispatch failure")

	// ErrRelocationFailure indicates the completed artifact could not be
	// moved into place; the completion is treated as a task failure.
	ErrRelocationFailure = errors.New("relocation failure")

	// ErrStaleChannel indicates the worker channel went silent; the task is
	// requeued without penalty because the task itself did not fail.
	ErrStaleChannel = errors.New("stale worker channel")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided taxonomy marker for later classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrDispatchFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a manual retry of the triggering request could
// plausibly succeed.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidTransition):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "task failure"
	}
	return strings.Join(parts, ": ")
}
