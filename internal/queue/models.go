package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a remux task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSent       Status = "sent"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusRetrying is a transient value written inside the failure
	// transaction for audit purposes; it is resolved to pending or failed
	// before the transaction commits and is never observable at rest.
	StatusRetrying Status = "retrying"
)

var allStatuses = []Status{
	StatusPending,
	StatusSent,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusRetrying,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// inFlightStatuses are the states owned by the worker channel: the task has
// been handed off and the coordinator is waiting on callbacks.
var inFlightStatuses = map[Status]struct{}{
	StatusSent:       {},
	StatusProcessing: {},
}

// Task represents one source folder tracked from discovery to remuxed output.
type Task struct {
	ID                    int64
	Name                  string
	SourcePath            string
	Status                Status
	Priority              int
	Attempts              int
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ErrorMessage          string
	ProgressPercent       float64
	ArtifactFile          string
	FinalFile             string
	FileSizeBytes         int64
	ProcessingSeconds     float64
	WorkerID              string
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	InFlight  int
	Completed int
	Failed    int
}

// Statistics aggregates completed-task metrics over a trailing window.
type Statistics struct {
	Counts            map[Status]int
	WindowCompleted   int
	AvgProcessingSecs float64
	TotalOutputBytes  int64
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsInFlight reports whether the task is currently owned by the worker channel.
func (t Task) IsInFlight() bool {
	_, ok := inFlightStatuses[t.Status]
	return ok
}

// IsTerminal reports whether the task has reached an end state. A failed task
// is terminal in the at-rest sense: it will not move again without either an
// explicit restart or the retry policy having already requeued it.
func (t Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsTerminalStatus reports whether a status is an end state.
func IsTerminalStatus(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}
