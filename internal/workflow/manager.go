// Package workflow coordinates the daemon's worker pool: claiming pending
// jobs from the store and driving them through the pipeline.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"framelens/internal/config"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/pipeline"
	"framelens/internal/services"
	"framelens/internal/telemetry"
)

// Runner executes one claimed job to a terminal state. *pipeline.Pipeline
// satisfies it.
type Runner interface {
	Run(ctx context.Context, job *jobstore.Job) *pipeline.Outcome
}

// Manager owns the polling loop and worker pool.
type Manager struct {
	cfg          *config.Config
	store        jobstore.Store
	runner       Runner
	logger       *slog.Logger
	pollInterval time.Duration
	workers      int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store jobstore.Store, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		runner:       runner,
		logger:       logger,
		pollInterval: pollInterval,
		workers:      workers,
	}
}

// Start launches the worker pool. Jobs stranded in processing from a
// previous run are reset to pending first so they get picked up again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("manager already running")
	}

	reset, err := m.store.ResetProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("reset stranded jobs", logging.Int("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(runCtx, i)
	}
	m.logger.Info("workflow manager started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish their
// current run.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Running reports whether the worker pool is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}
		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim job", logging.Error(err))
			if !m.waitPoll(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !m.waitPoll(ctx) {
				return
			}
			continue
		}

		logger.Info("claimed job",
			logging.String("job_id", job.ID),
			logging.String("source_kind", string(job.SourceKind)))
		jobCtx := services.WithRequestID(services.WithJobID(ctx, job.ID), uuid.NewString())
		telemetry.ActiveWorkers.Inc()
		outcome := m.runner.Run(jobCtx, job)
		telemetry.ActiveWorkers.Dec()
		switch {
		case outcome.Interrupted:
			logger.Info("job interrupted by shutdown",
				logging.String("job_id", job.ID))
		case outcome.Failed():
			logger.Warn("job finished with failure",
				logging.String("job_id", job.ID),
				logging.String("reason", outcome.FailureReason))
		}
	}
}

// waitPoll sleeps one poll interval, returning false when the context is
// cancelled.
func (m *Manager) waitPoll(ctx context.Context) bool {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
