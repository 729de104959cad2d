package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"framelens/internal/config"
)

// ErrDuplicateID indicates a job with the same identifier already exists.
var ErrDuplicateID = errors.New("job id already exists")

// Store abstracts job persistence across backends.
type Store interface {
	// Create inserts a new job. The job's CreatedAt and UpdatedAt are set
	// by the store. Returns ErrDuplicateID when the identifier is taken.
	Create(ctx context.Context, job *Job) error

	// GetByID fetches a job by identifier, returning nil when absent.
	GetByID(ctx context.Context, id string) (*Job, error)

	// ClaimNextPending atomically transitions the oldest pending job to
	// processing and returns it. Returns nil when no job is pending.
	ClaimNextPending(ctx context.Context) (*Job, error)

	// Update persists changes to an existing job and bumps UpdatedAt.
	Update(ctx context.Context, job *Job) error

	// List returns jobs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Job, error)

	// ResetProcessing returns processing jobs to pending. Called on daemon
	// startup so jobs orphaned by a crash get retried.
	ResetProcessing(ctx context.Context) (int, error)

	// Health reports aggregated job counts.
	Health(ctx context.Context) (HealthSummary, error)

	Close() error
}

// Open constructs the store selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg)
	case "postgres":
		return OpenPostgres(ctx, cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func validateForCreate(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	if _, ok := statusSet[job.Status]; !ok {
		return fmt.Errorf("unknown status %q", job.Status)
	}
	return nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(sqliteTimeFormat)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
