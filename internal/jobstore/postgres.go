package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore manages job persistence backed by PostgreSQL. It supports
// multiple daemons sharing one database: claiming uses FOR UPDATE SKIP
// LOCKED so workers never contend for the same job.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const pgJobColumns = "id, company, campaign, campaign_date, product, original_filename, source_path, source_kind, status, error_message, progress_stage, progress_message, frames_sampled, frames_accepted, frames_rejected, frames_indeterminate, metrics_json, blob_key, created_at, updated_at, started_at, completed_at"

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    company TEXT NOT NULL,
    campaign TEXT NOT NULL,
    campaign_date TEXT,
    product TEXT,
    original_filename TEXT,
    source_path TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    status TEXT NOT NULL,
    error_message TEXT,
    progress_stage TEXT,
    progress_message TEXT,
    frames_sampled INTEGER NOT NULL DEFAULT 0,
    frames_accepted INTEGER NOT NULL DEFAULT 0,
    frames_rejected INTEGER NOT NULL DEFAULT 0,
    frames_indeterminate INTEGER NOT NULL DEFAULT 0,
    metrics_json TEXT,
    blob_key TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);
`

// OpenPostgres connects to PostgreSQL and ensures the jobs table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.pool.Exec(
		ensureContext(ctx),
		`INSERT INTO jobs (`+pgJobColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		job.ID,
		job.Company,
		job.Campaign,
		pgNullString(job.CampaignDate),
		pgNullString(job.Product),
		pgNullString(job.OriginalFilename),
		job.SourcePath,
		string(job.SourceKind),
		string(job.Status),
		pgNullString(job.ErrorMessage),
		pgNullString(job.ProgressStage),
		pgNullString(job.ProgressMessage),
		job.FramesSampled,
		job.FramesAccepted,
		job.FramesRejected,
		job.FramesIndeterminate,
		pgNullString(job.MetricsJSON),
		pgNullString(job.BlobKey),
		now,
		now,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ensureContext(ctx),
		`SELECT `+pgJobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ClaimNextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)

	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, started_at = $2, updated_at = $2
         WHERE id = (
            SELECT id FROM jobs WHERE status = $3
            ORDER BY created_at, id LIMIT 1
            FOR UPDATE SKIP LOCKED
         )
         RETURNING `+pgJobColumns,
		string(StatusProcessing), time.Now().UTC(), string(StatusPending),
	)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	_, err := s.pool.Exec(
		ensureContext(ctx),
		`UPDATE jobs SET
            company = $1, campaign = $2, campaign_date = $3, product = $4, original_filename = $5,
            source_path = $6, source_kind = $7, status = $8,
            error_message = $9, progress_stage = $10, progress_message = $11,
            frames_sampled = $12, frames_accepted = $13, frames_rejected = $14, frames_indeterminate = $15,
            metrics_json = $16, blob_key = $17, updated_at = $18, started_at = $19, completed_at = $20
         WHERE id = $21`,
		job.Company,
		job.Campaign,
		pgNullString(job.CampaignDate),
		pgNullString(job.Product),
		pgNullString(job.OriginalFilename),
		job.SourcePath,
		string(job.SourceKind),
		string(job.Status),
		pgNullString(job.ErrorMessage),
		pgNullString(job.ProgressStage),
		pgNullString(job.ProgressMessage),
		job.FramesSampled,
		job.FramesAccepted,
		job.FramesRejected,
		job.FramesIndeterminate,
		pgNullString(job.MetricsJSON),
		pgNullString(job.BlobKey),
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	ctx = ensureContext(ctx)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + pgJobColumns + ` FROM jobs`)
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sb.WriteString(fmt.Sprintf(` WHERE status = $%d`, len(args)))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(fmt.Sprintf(` OFFSET $%d`, len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) ResetProcessing(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(
		ensureContext(ctx),
		`UPDATE jobs SET status = $1, started_at = NULL, updated_at = $2 WHERE status = $3`,
		string(StatusPending), time.Now().UTC(), string(StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.pool.Query(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan count: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return HealthSummary{}, fmt.Errorf("iterate counts: %w", err)
	}
	return summary, nil
}

func scanPGJob(row pgx.Row) (*Job, error) {
	var (
		job             Job
		campaignDate    *string
		product         *string
		originalName    *string
		sourceKind      string
		statusStr       string
		errorMessage    *string
		progressStage   *string
		progressMessage *string
		metricsJSON     *string
		blobKey         *string
		startedAt       *time.Time
		completedAt     *time.Time
	)

	if err := row.Scan(
		&job.ID,
		&job.Company,
		&job.Campaign,
		&campaignDate,
		&product,
		&originalName,
		&job.SourcePath,
		&sourceKind,
		&statusStr,
		&errorMessage,
		&progressStage,
		&progressMessage,
		&job.FramesSampled,
		&job.FramesAccepted,
		&job.FramesRejected,
		&job.FramesIndeterminate,
		&metricsJSON,
		&blobKey,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	job.CampaignDate = derefString(campaignDate)
	job.Product = derefString(product)
	job.OriginalFilename = derefString(originalName)
	job.SourceKind = SourceKind(sourceKind)
	job.Status = Status(statusStr)
	job.ErrorMessage = derefString(errorMessage)
	job.ProgressStage = derefString(progressStage)
	job.ProgressMessage = derefString(progressMessage)
	job.MetricsJSON = derefString(metricsJSON)
	job.BlobKey = derefString(blobKey)
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	return &job, nil
}

func pgNullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
