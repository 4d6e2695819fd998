package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"remuxd/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage queued tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksRestartCommand(ctx))
	tasksCmd.AddCommand(newTasksDeleteCommand(ctx))
	tasksCmd.AddCommand(newTasksPriorityCommand(ctx))
	tasksCmd.AddCommand(newTasksCancelCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			path := fmt.Sprintf("/api/tasks?limit=%d&offset=%d", limit, offset)
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				path += "&status=" + trimmed
			}

			var listing struct {
				Tasks []api.TaskView `json:"tasks"`
			}
			if err := client.get(cmd.Context(), path, &listing); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}

			rows := make([][]string, 0, len(listing.Tasks))
			for _, task := range listing.Tasks {
				rows = append(rows, []string{
					strconv.FormatInt(task.ID, 10),
					task.Name,
					task.Status,
					strconv.Itoa(task.Priority),
					strconv.Itoa(task.Attempts),
					formatProgress(task),
					task.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Status", "Pri", "Att", "Progress", "Updated"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Comma-separated status filter (pending,sent,processing,completed,failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of tasks to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Listing offset for paging")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var task api.TaskView
			if err := client.get(cmd.Context(), fmt.Sprintf("/api/tasks/%d", id), &task); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task %d: %s\n", task.ID, task.Name)
			fmt.Fprintf(out, "  Status:     %s\n", task.Status)
			fmt.Fprintf(out, "  Priority:   %d\n", task.Priority)
			fmt.Fprintf(out, "  Attempts:   %d\n", task.Attempts)
			fmt.Fprintf(out, "  Source:     %s\n", task.SourcePath)
			fmt.Fprintf(out, "  Progress:   %s\n", formatProgress(task))
			fmt.Fprintf(out, "  Created:    %s\n", task.CreatedAt.Local().Format(time.RFC1123))
			fmt.Fprintf(out, "  Updated:    %s\n", task.UpdatedAt.Local().Format(time.RFC1123))
			if task.WorkerID != "" {
				fmt.Fprintf(out, "  Worker:     %s\n", task.WorkerID)
			}
			if task.FinalFile != "" {
				fmt.Fprintf(out, "  Output:     %s (%s)\n", task.FinalFile, formatBytes(task.FileSizeBytes))
			}
			if task.ProcessingSeconds > 0 {
				fmt.Fprintf(out, "  Duration:   %s\n", (time.Duration(task.ProcessingSeconds) * time.Second).String())
			}
			if task.ErrorMessage != "" {
				fmt.Fprintf(out, "  Last error: %s\n", task.ErrorMessage)
			}
			return nil
		},
	}
}

func newTasksRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id>",
		Short: "Return a completed or failed task to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return taskAction(ctx, cmd, args[0], "restart", "Task %d restarted.\n")
		},
	}
}

func newTasksCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task, signalling the worker when it is in flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return taskAction(ctx, cmd, args[0], "cancel", "Task %d cancelled.\n")
		},
	}
}

func newTasksDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a task (refused while it is processing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.delete(cmd.Context(), fmt.Sprintf("/api/tasks/%d", id), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d deleted.\n", id)
			return nil
		},
	}
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every task regardless of status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var result struct {
				Removed int64 `json:"removed"`
			}
			if err := client.delete(cmd.Context(), "/api/tasks", &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d task(s).\n", result.Removed)
			return nil
		},
	}
}

func newTasksPriorityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <0-10>",
		Short: "Change a task's dispatch priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			priority, err := strconv.Atoi(args[1])
			if err != nil || priority < 0 || priority > 10 {
				return fmt.Errorf("priority must be an integer between 0 and 10")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.post(cmd.Context(), fmt.Sprintf("/api/tasks/%d/priority", id), map[string]int{"priority": priority}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d priority set to %d.\n", id, priority)
			return nil
		},
	}
}

func taskAction(ctx *commandContext, cmd *cobra.Command, rawID, action, successFormat string) error {
	id, err := parseTaskID(rawID)
	if err != nil {
		return err
	}
	client, err := ctx.client()
	if err != nil {
		return err
	}
	if err := client.post(cmd.Context(), fmt.Sprintf("/api/tasks/%d/%s", id, action), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), successFormat, id)
	return nil
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}

func formatProgress(task api.TaskView) string {
	switch task.Status {
	case "processing":
		return fmt.Sprintf("%.0f%%", task.ProgressPercent)
	case "completed":
		return "100%"
	default:
		return "-"
	}
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
