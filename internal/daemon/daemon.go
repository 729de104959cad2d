package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"framelens/internal/config"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/telemetry"
	"framelens/internal/workflow"
)

// LockFileName is the exclusivity lock under the log directory.
const LockFileName = "framelens.lock"

// Daemon enforces single-instance execution and owns the worker pool and
// telemetry listener lifecycles.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    jobstore.Store
	workflow *workflow.Manager
	metrics  *telemetry.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	StoreBackend string
	MetricsBind  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store jobstore.Store, logger *slog.Logger, wf *workflow.Manager, metrics *telemetry.Server) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		metrics:  metrics,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker pool and metrics
// listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another framelens daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.metrics != nil {
		d.metrics.Start()
	}

	d.running.Store(true)
	d.logger.Info("framelens daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.metrics != nil {
		if err := d.metrics.Shutdown(ctx); err != nil {
			d.logger.Warn("failed to shut down metrics listener", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("framelens daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Health returns aggregate job store diagnostics.
func (d *Daemon) Health(ctx context.Context) (jobstore.HealthSummary, error) {
	if d.store == nil {
		return jobstore.HealthSummary{}, errors.New("job store unavailable")
	}
	return d.store.Health(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		StoreBackend: d.cfg.Store.Backend,
		MetricsBind:  d.cfg.Telemetry.MetricsBind,
	}
}
