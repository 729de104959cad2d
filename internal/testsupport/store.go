package testsupport

import (
	"context"
	"testing"

	"framelens/internal/config"
	"framelens/internal/jobstore"
)

// MustOpenStore opens a job store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store jobstore.Store, id, company, campaign string, kind jobstore.SourceKind) *jobstore.Job {
	t.Helper()

	job := &jobstore.Job{
		ID:         id,
		Company:    company,
		Campaign:   campaign,
		SourceKind: kind,
		Status:     jobstore.StatusPending,
	}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
