package queue

import (
	"context"
	"fmt"
	"time"
)

// Health summarizes queue occupancy for the health endpoint.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return HealthSummary{}, fmt.Errorf("query queue health: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan queue health: %w", err)
		}
		summary.Total += count
		switch Status(statusStr) {
		case StatusPending, StatusRetrying:
			summary.Pending += count
		case StatusSent, StatusProcessing:
			summary.InFlight += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return HealthSummary{}, fmt.Errorf("iterate queue health: %w", err)
	}
	return summary, nil
}

// Statistics aggregates per-status counts plus throughput figures for
// completions inside the trailing window.
func (s *Store) Statistics(ctx context.Context, window time.Duration) (Statistics, error) {
	ctx = ensureContext(ctx)
	stats := Statistics{Counts: make(map[Status]int, len(allStatuses))}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return Statistics{}, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return Statistics{}, fmt.Errorf("scan status counts: %w", err)
		}
		stats.Counts[Status(statusStr)] = count
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, fmt.Errorf("iterate status counts: %w", err)
	}

	cutoff := time.Now().UTC().Add(-window).Format(timestampFormat)
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(processing_seconds), 0),
		       COALESCE(SUM(file_size_bytes), 0)
		FROM tasks
		WHERE status = ? AND processing_completed_at >= ?`,
		string(StatusCompleted), cutoff).
		Scan(&stats.WindowCompleted, &stats.AvgProcessingSecs, &stats.TotalOutputBytes)
	if err != nil {
		return Statistics{}, fmt.Errorf("query completion window: %w", err)
	}
	return stats, nil
}

// CleanupOldRecords deletes terminal tasks whose last update is older
// than the retention window, returning the number removed.
func (s *Store) CleanupOldRecords(ctx context.Context, retention time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := time.Now().UTC().Add(-retention).Format(timestampFormat)
	res, err := s.execWithRetry(ctx, `
		DELETE FROM tasks
		WHERE status IN (?, ?) AND updated_at < ?`,
		string(StatusCompleted), string(StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup old tasks: %w", err)
	}
	return affected, nil
}

// Clear removes every task regardless of status. Destructive; served
// through the admin API for 'remuxctl tasks clear' only.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, "DELETE FROM tasks")
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return affected, nil
}
