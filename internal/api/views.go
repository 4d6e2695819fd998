package api

import (
	"time"

	"remuxd/internal/queue"
)

// TaskView is the wire representation of a task.
type TaskView struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	SourcePath            string     `json:"source_path"`
	Status                string     `json:"status"`
	Priority              int        `json:"priority"`
	Attempts              int        `json:"attempts"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	ProgressPercent       float64    `json:"progress_percent"`
	ArtifactFile          string     `json:"artifact_file,omitempty"`
	FinalFile             string     `json:"final_file,omitempty"`
	FileSizeBytes         int64      `json:"file_size_bytes,omitempty"`
	ProcessingSeconds     float64    `json:"processing_seconds,omitempty"`
	WorkerID              string     `json:"worker_id,omitempty"`
}

func taskView(task *queue.Task) TaskView {
	return TaskView{
		ID:                    task.ID,
		Name:                  task.Name,
		SourcePath:            task.SourcePath,
		Status:                string(task.Status),
		Priority:              task.Priority,
		Attempts:              task.Attempts,
		CreatedAt:             task.CreatedAt,
		UpdatedAt:             task.UpdatedAt,
		ProcessingStartedAt:   task.ProcessingStartedAt,
		ProcessingCompletedAt: task.ProcessingCompletedAt,
		ErrorMessage:          task.ErrorMessage,
		ProgressPercent:       task.ProgressPercent,
		ArtifactFile:          task.ArtifactFile,
		FinalFile:             task.FinalFile,
		FileSizeBytes:         task.FileSizeBytes,
		ProcessingSeconds:     task.ProcessingSeconds,
		WorkerID:              task.WorkerID,
	}
}

func taskViews(tasks []*queue.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView(task))
	}
	return views
}

// StatisticsView summarizes queue health and trailing-window throughput.
type StatisticsView struct {
	Counts            map[string]int `json:"counts"`
	WindowCompleted   int            `json:"window_completed"`
	AvgProcessingSecs float64        `json:"avg_processing_seconds"`
	TotalOutputBytes  int64          `json:"total_output_bytes"`
}

func statisticsView(stats queue.Statistics) StatisticsView {
	counts := make(map[string]int, len(stats.Counts))
	for status, count := range stats.Counts {
		counts[string(status)] = count
	}
	return StatisticsView{
		Counts:            counts,
		WindowCompleted:   stats.WindowCompleted,
		AvgProcessingSecs: stats.AvgProcessingSecs,
		TotalOutputBytes:  stats.TotalOutputBytes,
	}
}
