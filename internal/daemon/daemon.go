package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"remuxd/internal/api"
	"remuxd/internal/config"
	"remuxd/internal/dispatch"
	"remuxd/internal/logging"
	"remuxd/internal/notifications"
	"remuxd/internal/preflight"
	"remuxd/internal/queue"
	"remuxd/internal/reconcile"
	"remuxd/internal/scanner"
	"remuxd/internal/webhook"
	"remuxd/internal/workerclient"
)

const shutdownTimeout = 10 * time.Second

// Daemon owns the coordinator's runtime: the task store, the dispatch
// and reconcile loops, the cron-driven scanner, and the HTTP API. A
// flock lock file enforces a single instance per host.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Reconciler
	scanner    *scanner.Scanner
	worker     *workerclient.Client
	notifier   notifications.Service
	server     *http.Server

	lockPath string
	lock     *flock.Flock
	cron     *cron.Cron

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	boundAddr atomic.Value
}

// New wires the daemon's collaborators from configuration.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	notifier := notifications.NewService(cfg)
	worker := workerclient.New(cfg, logger)
	reconciler := reconcile.New(cfg, store, notifier, logger)
	receiver := webhook.NewReceiver(cfg, store, nil, notifier, logger)

	var shareScanner *scanner.Scanner
	if cfg.Scanner.Enabled {
		shareScanner = scanner.New(cfg, store, notifier, logger)
	}

	apiServer := api.New(cfg, store, receiver, reconciler, shareScanner, worker, notifier, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "remuxd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		dispatcher: dispatch.New(cfg, store, worker, notifier, logger),
		reconciler: reconciler,
		scanner:    shareScanner,
		worker:     worker,
		notifier:   notifier,
		server: &http.Server{
			Addr:              cfg.Paths.APIBind,
			Handler:           apiServer.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, runs preflight, and launches the
// background loops and the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another remuxd instance is already running")
	}

	for _, result := range preflight.RunAll(ctx, d.cfg, d.worker) {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		// A down worker or a full volume should not keep the daemon
		// from starting; the dispatcher backs off on its own.
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("bind %s: %w", d.cfg.Paths.APIBind, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.dispatcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatcher stopped", logging.Error(err))
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.reconciler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("reconciler stopped", logging.Error(err))
		}
	}()

	if err := d.startCron(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("http server stopped", logging.Error(err))
		}
	}()

	d.boundAddr.Store(listener.Addr().String())
	d.running.Store(true)
	d.logger.Info("remuxd started",
		logging.String("bind", listener.Addr().String()),
		logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) startCron(ctx context.Context) error {
	if d.scanner == nil {
		return nil
	}

	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.cfg.Scanner.Schedule, func() {
		if _, err := d.scanner.Scan(ctx); err != nil {
			d.logger.Error("scheduled scan failed", logging.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule scan %q: %w", d.cfg.Scanner.Schedule, err)
	}
	if _, err := d.cron.AddFunc(d.cfg.Scanner.CleanupSchedule, func() {
		if _, err := d.reconciler.Cleanup(ctx); err != nil {
			d.logger.Error("scheduled cleanup failed", logging.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", d.cfg.Scanner.CleanupSchedule, err)
	}
	d.cron.Start()
	return nil
}

// Stop shuts down the loops and the HTTP server, then releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown", logging.Error(err))
	}

	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("remuxd stopped")
}

// Close stops the daemon and closes the task store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the bound API address once the daemon is running. Useful
// when the configured bind uses port 0.
func (d *Daemon) Addr() string {
	if addr, ok := d.boundAddr.Load().(string); ok {
		return addr
	}
	return d.cfg.Paths.APIBind
}

// Status summarizes daemon runtime information for diagnostics.
type Status struct {
	Running      bool
	Queue        queue.HealthSummary
	StorePath    string
	LockFilePath string
}

// Status reports the current runtime state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        summary,
		StorePath:    d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}
