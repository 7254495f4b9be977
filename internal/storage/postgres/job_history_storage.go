package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/covera/internal/models"
)

// ErrJobNotFound is returned by GetJob for unknown IDs
var ErrJobNotFound = errors.New("job not found in history")

func (s *Store) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	snapshot, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO `+s.table("jobs")+` (id, status, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		job.ID, string(job.Status), snapshot, job.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM `+s.table("jobs")+` WHERE id = $1`, jobID).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(snapshot, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs returns every stored job, newest first
func (s *Store) ListJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT snapshot FROM `+s.table("jobs")+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Job, 0)
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		var job models.Job
		if err := json.Unmarshal(snapshot, &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("jobs")+` WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
