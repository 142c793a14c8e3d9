package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRunRepository records which scheduled job windows have been claimed.
type JobRunRepository struct {
	db *pgxpool.Pool
}

// NewJobRunRepository constructs a JobRunRepository.
func NewJobRunRepository(db *pgxpool.Pool) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Claim records a run of job for window. It reports false when the window
// was already claimed by an earlier run or another process.
func (r *JobRunRepository) Claim(ctx context.Context, job, window string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_runs (job, run_window, started_at) VALUES ($1, $2, $3)
		 ON CONFLICT (job, run_window) DO NOTHING`,
		job, window, now,
	)
	if err != nil {
		return false, fmt.Errorf("claim job window: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release removes the claim of job for window.
func (r *JobRunRepository) Release(ctx context.Context, job, window string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM job_runs WHERE job = $1 AND run_window = $2`, job, window,
	); err != nil {
		return fmt.Errorf("release job window: %w", err)
	}
	return nil
}
