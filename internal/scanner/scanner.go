package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"remuxd/internal/config"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/organizer"
	"remuxd/internal/queue"
	"remuxd/internal/telemetry"
)

// Scanner walks the share root for finished BluRay rips and enqueues them
// as pending tasks. It is safe to run repeatedly; known names and already
// processed sources are skipped.
type Scanner struct {
	store    *queue.Store
	cfg      *config.Config
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs a scanner.
func New(cfg *config.Config, store *queue.Store, notifier notifications.Service, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "scanner"),
	}
}

// Result summarizes one scan pass.
type Result struct {
	Scanned int
	Created int
	Skipped int
}

// Scan walks the top level of the share root and creates a pending task
// for every BDMV folder that is not yet tracked and not yet in the
// library. It returns how many candidates were seen and created.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	var result Result

	entries, err := os.ReadDir(s.cfg.Paths.ShareRoot)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		sourcePath := filepath.Join(s.cfg.Paths.ShareRoot, name)
		if !s.isCompleteRip(sourcePath) {
			continue
		}
		result.Scanned++

		skip, err := s.shouldSkip(ctx, name)
		if err != nil {
			return result, err
		}
		if skip {
			result.Skipped++
			continue
		}

		task, err := s.store.Create(ctx, name, sourcePath, s.cfg.Scanner.DefaultPriority)
		if err != nil {
			if errors.Is(err, queue.ErrDuplicateName) {
				// Raced with a concurrent scan or manual creation.
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Created++
		telemetry.TasksCreated.Inc()
		s.logger.Info("discovered new source",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldTaskName, name),
			logging.Int("priority", task.Priority))

		if s.notifier != nil {
			if err := s.notifier.NotifyTaskQueued(ctx, name); err != nil {
				s.logger.Warn("queued notification failed", logging.Error(err))
			}
		}
	}

	if result.Created > 0 || result.Skipped > 0 {
		s.logger.Info("share scan finished",
			logging.Int("scanned", result.Scanned),
			logging.Int("created", result.Created),
			logging.Int("skipped", result.Skipped))
	}
	return result, nil
}

func (s *Scanner) shouldSkip(ctx context.Context, name string) (bool, error) {
	existing, err := s.store.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}
	if _, err := os.Stat(organizer.LibraryPath(s.cfg, name)); err == nil {
		// Already in the library from a run before the retention window
		// removed the record.
		return true, nil
	}
	return false, nil
}

// isCompleteRip reports whether dir looks like a finished BluRay rip: a
// BDMV/index.bdmv marker plus enough stream payload to rule out a rip
// that is still being copied onto the share.
func (s *Scanner) isCompleteRip(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "BDMV", "index.bdmv")); err != nil {
		return false
	}
	minBytes := s.cfg.Scanner.MinSizeMB * 1024 * 1024
	if minBytes <= 0 {
		return true
	}
	return streamPayloadSize(dir) >= minBytes
}

func streamPayloadSize(dir string) int64 {
	var total int64
	streamDir := filepath.Join(dir, "BDMV", "STREAM")
	_ = filepath.WalkDir(streamDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
