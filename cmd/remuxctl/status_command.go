package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"remuxd/internal/api"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue health and throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var health struct {
				Status       string `json:"status"`
				Total        int    `json:"total"`
				Pending      int    `json:"pending"`
				InFlight     int    `json:"in_flight"`
				Completed    int    `json:"completed"`
				Failed       int    `json:"failed"`
				WorkerOnline bool   `json:"worker_online"`
			}
			if err := client.get(cmd.Context(), "/api/health", &health); err != nil {
				return err
			}
			var stats api.StatisticsView
			if err := client.get(cmd.Context(), "/api/statistics", &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, "Queue")
			fmt.Fprintf(out, "  Pending:    %d\n", health.Pending)
			fmt.Fprintf(out, "  In flight:  %d\n", health.InFlight)
			fmt.Fprintf(out, "  Completed:  %d\n", health.Completed)
			fmt.Fprintf(out, "  Failed:     %s\n", colorizeCount(health.Failed, colorize))
			fmt.Fprintf(out, "  Total:      %d\n", health.Total)

			fmt.Fprintln(out, "Worker")
			fmt.Fprintf(out, "  Online:     %s\n", renderOnline(health.WorkerOnline, colorize))

			fmt.Fprintln(out, "Last 30 days")
			fmt.Fprintf(out, "  Remuxed:    %d\n", stats.WindowCompleted)
			if stats.WindowCompleted > 0 {
				avg := time.Duration(stats.AvgProcessingSecs) * time.Second
				fmt.Fprintf(out, "  Avg time:   %s\n", avg)
				fmt.Fprintf(out, "  Output:     %s\n", formatBytes(stats.TotalOutputBytes))
			}
			return nil
		},
	}
}

func renderOnline(online, colorize bool) string {
	if online {
		if colorize {
			return ansiGreen + "yes" + ansiReset
		}
		return "yes"
	}
	if colorize {
		return ansiRed + "no" + ansiReset
	}
	return "no"
}

func colorizeCount(count int, colorize bool) string {
	rendered := fmt.Sprintf("%d", count)
	if colorize && count > 0 {
		return ansiYellow + rendered + ansiReset
	}
	return rendered
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
