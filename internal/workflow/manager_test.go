package workflow

import (
	"context"
	"testing"
	"time"

	"framelens/internal/config"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/pipeline"
)

// fakeRunner reports claimed job IDs on a channel.
type fakeRunner struct {
	ran chan string
}

func (f *fakeRunner) Run(ctx context.Context, job *jobstore.Job) *pipeline.Outcome {
	f.ran <- job.ID
	return &pipeline.Outcome{JobID: job.ID}
}

func managerConfig() *config.Config {
	cfg := config.Default()
	cfg.Workflow.Workers = 2
	cfg.Workflow.PollIntervalSeconds = 1
	return &cfg
}

func seedPending(t *testing.T, store jobstore.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		job := &jobstore.Job{
			ID:         id,
			Company:    "acme",
			Campaign:   "summer",
			SourceKind: jobstore.SourceVideo,
			Status:     jobstore.StatusPending,
		}
		if err := store.Create(context.Background(), job); err != nil {
			t.Fatalf("create job %s: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitForIDs(t *testing.T, ch chan string, count int) map[string]bool {
	t.Helper()
	seen := make(map[string]bool)
	deadline := time.After(5 * time.Second)
	for len(seen) < count {
		select {
		case id := <-ch:
			seen[id] = true
		case <-deadline:
			t.Fatalf("timed out waiting for jobs, saw %v", seen)
		}
	}
	return seen
}

func TestManagerProcessesPendingJobs(t *testing.T) {
	store := jobstore.NewMemoryStore()
	seedPending(t, store, "a", "b")

	runner := &fakeRunner{ran: make(chan string, 4)}
	m := NewManager(managerConfig(), store, runner, logging.NewNop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	seen := waitForIDs(t, runner.ran, 2)
	if !seen["a"] || !seen["b"] {
		t.Fatalf("processed jobs = %v", seen)
	}
}

func TestManagerResetsStrandedJobsOnStart(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := &jobstore.Job{
		ID:         "stranded",
		Company:    "acme",
		Campaign:   "summer",
		SourceKind: jobstore.SourceVideo,
		Status:     jobstore.StatusProcessing,
	}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	runner := &fakeRunner{ran: make(chan string, 2)}
	m := NewManager(managerConfig(), store, runner, logging.NewNop())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	seen := waitForIDs(t, runner.ran, 1)
	if !seen["stranded"] {
		t.Fatalf("stranded job not reclaimed: %v", seen)
	}
}

func TestManagerStartTwiceFails(t *testing.T) {
	store := jobstore.NewMemoryStore()
	runner := &fakeRunner{ran: make(chan string, 1)}
	m := NewManager(managerConfig(), store, runner, logging.NewNop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail")
	}
}

func TestManagerStopIsIdempotent(t *testing.T) {
	store := jobstore.NewMemoryStore()
	runner := &fakeRunner{ran: make(chan string, 1)}
	m := NewManager(managerConfig(), store, runner, logging.NewNop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Running() {
		t.Fatal("manager should be running")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("manager should be stopped")
	}
}
