package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atomizerhq/atomizer/internal/apptype"
)

// CreateIngestJob inserts a job row in the queued state.
func (dm *DBManager) CreateIngestJob(ctx context.Context, sourceID string) error {
	ts := now()
	_, err := dm.db.ExecContext(ctx, `INSERT INTO ingest_jobs (source_id, state, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(source_id) DO UPDATE SET state = excluded.state, error = '', updated_at = excluded.updated_at`,
		sourceID, apptype.JobQueued, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	return nil
}

// SetIngestJobState advances a job. An empty errMsg clears the error column.
func (dm *DBManager) SetIngestJobState(ctx context.Context, sourceID, state, errMsg string) error {
	_, err := dm.db.ExecContext(ctx,
		"UPDATE ingest_jobs SET state = ?, error = ?, updated_at = ? WHERE source_id = ?",
		state, errMsg, now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to set ingest job state: %w", err)
	}
	return nil
}

// GetIngestJob retrieves the job for a source.
func (dm *DBManager) GetIngestJob(ctx context.Context, sourceID string) (*apptype.IngestJob, error) {
	job := &apptype.IngestJob{}
	err := dm.db.QueryRowContext(ctx,
		"SELECT source_id, state, error, created_at, updated_at FROM ingest_jobs WHERE source_id = ?",
		sourceID).
		Scan(&job.SourceID, &job.State, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apptype.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ingest job: %w", err)
	}
	return job, nil
}
