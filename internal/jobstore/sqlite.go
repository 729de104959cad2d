package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"framelens/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases with a different version are rejected.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteStore manages job persistence backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const jobColumns = "id, company, campaign, campaign_date, product, original_filename, source_path, source_kind, status, error_message, progress_stage, progress_message, frames_sampled, frames_accepted, frames_rejected, frames_indeterminate, metrics_json, blob_key, created_at, updated_at, started_at, completed_at"

// sqliteTimeFormat is fixed-width so lexicographic ORDER BY created_at
// matches chronological order. RFC3339Nano trims trailing zeros and does
// not sort correctly as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite initializes or connects to the job database under the
// configured log directory.
func OpenSQLite(ctx context.Context, cfg *config.Config) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenSQLitePath(ctx, filepath.Join(cfg.Paths.LogDir, "jobs.db"))
}

// OpenSQLitePath opens the job database at an explicit path.
func OpenSQLitePath(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(ensureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to reset)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Company,
		job.Campaign,
		nullableString(job.CampaignDate),
		nullableString(job.Product),
		nullableString(job.OriginalFilename),
		job.SourcePath,
		string(job.SourceKind),
		string(job.Status),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		nullableString(job.ProgressMessage),
		job.FramesSampled,
		job.FramesAccepted,
		job.FramesRejected,
		job.FramesIndeterminate,
		nullableString(job.MetricsJSON),
		nullableString(job.BlobKey),
		now.Format(sqliteTimeFormat),
		now.Format(sqliteTimeFormat),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNextPending selects the oldest pending job and marks it processing
// inside a single transaction.
func (s *SQLiteStore) ClaimNextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)

	var claimedID string
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin claim tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			StatusPending,
		)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				claimedID = ""
				return nil
			}
			return fmt.Errorf("select pending job: %w", err)
		}

		now := time.Now().UTC().Format(sqliteTimeFormat)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusProcessing, now, now, id, StatusPending,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim: %w", err)
		}
		claimedID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimedID == "" {
		return nil, nil
	}
	return s.GetByID(ctx, claimedID)
}

func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            company = ?, campaign = ?, campaign_date = ?, product = ?, original_filename = ?,
            source_path = ?, source_kind = ?, status = ?,
            error_message = ?, progress_stage = ?, progress_message = ?,
            frames_sampled = ?, frames_accepted = ?, frames_rejected = ?, frames_indeterminate = ?,
            metrics_json = ?, blob_key = ?, updated_at = ?, started_at = ?, completed_at = ?
        WHERE id = ?`,
		job.Company,
		job.Campaign,
		nullableString(job.CampaignDate),
		nullableString(job.Product),
		nullableString(job.OriginalFilename),
		job.SourcePath,
		string(job.SourceKind),
		string(job.Status),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		nullableString(job.ProgressMessage),
		job.FramesSampled,
		job.FramesAccepted,
		job.FramesRejected,
		job.FramesIndeterminate,
		nullableString(job.MetricsJSON),
		nullableString(job.BlobKey),
		job.UpdatedAt.Format(sqliteTimeFormat),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	ctx = ensureContext(ctx)

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
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

func (s *SQLiteStore) ResetProcessing(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?`,
		StatusPending, now, StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *SQLiteStore) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
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

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		company         string
		campaign        string
		campaignDate    sql.NullString
		product         sql.NullString
		originalName    sql.NullString
		sourcePath      string
		sourceKind      string
		statusStr       string
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		framesSampled   int
		framesAccepted  int
		framesRejected  int
		framesIndet     int
		metricsJSON     sql.NullString
		blobKey         sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&company,
		&campaign,
		&campaignDate,
		&product,
		&originalName,
		&sourcePath,
		&sourceKind,
		&statusStr,
		&errorMessage,
		&progressStage,
		&progressMessage,
		&framesSampled,
		&framesAccepted,
		&framesRejected,
		&framesIndet,
		&metricsJSON,
		&blobKey,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                  id,
		Company:             company,
		Campaign:            campaign,
		CampaignDate:        campaignDate.String,
		Product:             product.String,
		OriginalFilename:    originalName.String,
		SourcePath:          sourcePath,
		SourceKind:          SourceKind(sourceKind),
		Status:              Status(statusStr),
		ErrorMessage:        errorMessage.String,
		ProgressStage:       progressStage.String,
		ProgressMessage:     progressMessage.String,
		FramesSampled:       framesSampled,
		FramesAccepted:      framesAccepted,
		FramesRejected:      framesRejected,
		FramesIndeterminate: framesIndet,
		MetricsJSON:         metricsJSON.String,
		BlobKey:             blobKey.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
