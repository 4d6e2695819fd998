package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"remuxd/internal/config"
	"remuxd/internal/fileutil"
	"remuxd/internal/logging"
	"remuxd/internal/queue"
)

// Organizer moves remuxed artifacts into the final library location.
type Organizer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs the organizer.
func New(cfg *config.Config, logger *slog.Logger) *Organizer {
	return &Organizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "organizer"),
	}
}

// Relocate moves a completed task's artifact into the output library and
// returns the final path. The artifact path from the worker may be
// absolute or relative to the share root. Any failure here wraps
// ErrRelocationFailure so the caller converts the completion into a
// task failure.
func (o *Organizer) Relocate(ctx context.Context, task *queue.Task, artifactFile string) (string, error) {
	artifactFile = strings.TrimSpace(artifactFile)
	if artifactFile == "" {
		return "", queue.Wrap(queue.ErrRelocationFailure, "organizer", "validate artifact",
			"completion callback carried no artifact file", nil)
	}

	source := artifactFile
	if !filepath.IsAbs(source) {
		source = filepath.Join(o.cfg.Paths.ShareRoot, source)
	}
	if _, err := os.Stat(source); err != nil {
		return "", queue.Wrap(queue.ErrRelocationFailure, "organizer", "stat artifact",
			fmt.Sprintf("artifact %s is not readable", source), err)
	}

	outputDir := strings.TrimSpace(o.cfg.Paths.OutputDir)
	if outputDir == "" {
		return "", queue.Wrap(queue.ErrRelocationFailure, "organizer", "resolve output dir",
			"output directory not configured; set paths.output_dir in config.toml", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", queue.Wrap(queue.ErrRelocationFailure, "organizer", "ensure output dir",
			"failed to create output directory", err)
	}

	target := filepath.Join(outputDir, targetFilename(task, source))
	if err := moveFile(source, target); err != nil {
		return "", queue.Wrap(queue.ErrRelocationFailure, "organizer", "move artifact",
			fmt.Sprintf("failed to move artifact into %s", outputDir), err)
	}

	o.logger.InfoContext(ctx, "artifact relocated",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String("final_file", target))
	return target, nil
}

// LibraryPath returns where a task with the given name would land in the
// output library, assuming the default container extension. The scanner
// uses this to skip sources that were already processed.
func LibraryPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Paths.OutputDir, sanitizeFilename(name)+".mkv")
}

// targetFilename names the library file after the task, keeping the
// artifact's extension.
func targetFilename(task *queue.Task, source string) string {
	ext := filepath.Ext(source)
	if ext == "" {
		ext = ".mkv"
	}
	name := strings.TrimSpace(task.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(source), ext)
	}
	return sanitizeFilename(name) + ext
}

func sanitizeFilename(name string) string {
	var builder strings.Builder
	builder.Grow(len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			builder.WriteRune('-')
		default:
			builder.WriteRune(r)
		}
	}
	result := strings.TrimSpace(builder.String())
	if result == "" {
		return "remux"
	}
	return result
}

// moveFile renames when possible and falls back to a verified copy plus
// remove across filesystem boundaries, which is the normal case for
// network shares.
func moveFile(src, dst string) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := fileutil.CopyVerified(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return renameErr
}
