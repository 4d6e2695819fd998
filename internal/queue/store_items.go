package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a new pending task. Task names are unique across the
// queue; colliding names return ErrDuplicateName.
func (s *Store) Create(ctx context.Context, name, sourcePath string, priority int) (*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	nowStr := now.Format(timestampFormat)

	res, err := s.execWithRetry(ctx, `
		INSERT INTO tasks (name, source_path, status, priority, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		name, sourcePath, string(StatusPending), priority, nowStr, nowStr)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("task %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get insert id: %w", err)
	}

	return &Task{
		ID:         id,
		Name:       name,
		SourcePath: sourcePath,
		Status:     StatusPending,
		Priority:   priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GetByID fetches a task by identifier. Missing rows return (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query task %d: %w", id, err)
	}
	return task, nil
}

// FindByName fetches a task by its unique name. Missing rows return (nil, nil).
func (s *Store) FindByName(ctx context.Context, name string) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE name = ?", name)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query task %q: %w", name, err)
	}
	return task, nil
}

// List returns tasks ordered by priority then recency. An empty status
// slice lists every task. Limit and offset of zero disable paging.
func (s *Store) List(ctx context.Context, statuses []Status, limit, offset int) ([]*Task, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + taskColumns + " FROM tasks"
	args := make([]any, 0, len(statuses)+2)
	if len(statuses) > 0 {
		for _, status := range statuses {
			if _, ok := statusSet[status]; !ok {
				return nil, fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
			}
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
	}
	query += " ORDER BY priority DESC, created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// PendingTasks returns pending work in dispatch order, highest priority
// first and oldest first within a priority.
func (s *Store) PendingTasks(ctx context.Context, limit int) ([]*Task, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + taskColumns + " FROM tasks WHERE status = ? ORDER BY priority DESC, created_at ASC"
	args := []any{string(StatusPending)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// NextPending returns the highest priority pending task, or nil when
// the queue is drained.
func (s *Store) NextPending(ctx context.Context) (*Task, error) {
	tasks, err := s.PendingTasks(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// TasksWithStatus returns every task currently in the given status.
func (s *Store) TasksWithStatus(ctx context.Context, status Status) ([]*Task, error) {
	return s.List(ctx, []Status{status}, 0, 0)
}

// CountInFlight counts tasks occupying worker capacity (sent or processing).
func (s *Store) CountInFlight(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE status IN (?, ?)",
		string(StatusSent), string(StatusProcessing)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count in-flight tasks: %w", err)
	}
	return count, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func statusList(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, status := range statuses {
		parts[i] = string(status)
	}
	return strings.Join(parts, ", ")
}
