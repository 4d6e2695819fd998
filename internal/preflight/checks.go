package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// minFreeBytes is the floor below which the output volume is considered
// too full to accept another remux. A single BluRay remux commonly runs
// 20-40 GB.
const minFreeBytes = 50 << 30

const workerCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%.1f GB free, need %.1f GB)",
			path, float64(free)/(1<<30), float64(minBytes)/(1<<30))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%.1f GB free)", path, float64(free)/(1<<30))}
}

// CheckWorker verifies the remux worker's health endpoint answers.
func CheckWorker(ctx context.Context, worker WorkerProber) Result {
	const name = "Remux worker"

	checkCtx, cancel := context.WithTimeout(ctx, workerCheckTimeout)
	defer cancel()

	health, err := worker.Health(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeWorkerError(err)}
	}
	detail := fmt.Sprintf("status %s, %d active", health.Status, health.ActiveTasks)
	if health.Version != "" {
		detail += ", version " + health.Version
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

func summarizeWorkerError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (worker unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (worker unreachable)"
	}
	return err.Error()
}
