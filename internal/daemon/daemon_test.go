package daemon_test

import (
	"context"
	"os"
	"testing"

	"framelens/internal/daemon"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/pipeline"
	"framelens/internal/testsupport"
	"framelens/internal/workflow"
)

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, job *jobstore.Job) *pipeline.Outcome {
	return &pipeline.Outcome{JobID: job.ID}
}

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	wf := workflow.NewManager(cfg, store, nopRunner{}, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), wf, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if _, err := os.Stat(status.LockFilePath); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	d.Stop(ctx)
	if d.Status().Running {
		t.Fatal("daemon should report stopped")
	}

	// Restart after clean stop works.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop(ctx)
}

func TestDaemonStartWhileRunningFails(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop(ctx)

	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}
}

func TestDaemonHealth(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	summary, err := d.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("expected empty store, got %+v", summary)
	}
}
