package preflight

import (
	"context"

	"remuxd/internal/config"
	"remuxd/internal/workerclient"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// WorkerProber reports worker reachability. Satisfied by
// *workerclient.Client.
type WorkerProber interface {
	Health(ctx context.Context) (*workerclient.Health, error)
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, worker WorkerProber) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Share root", cfg.Paths.ShareRoot))
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output library", cfg.Paths.OutputDir))
	}
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, minFreeBytes))
	}
	if worker != nil {
		results = append(results, CheckWorker(ctx, worker))
	}

	return results
}

// AllPassed reports whether every check in results passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
