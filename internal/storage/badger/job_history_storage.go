package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/covera/internal/models"
)

// ErrJobNotFound is returned by GetJob for unknown IDs
var ErrJobNotFound = errors.New("job not found in history")

func (s *Store) SaveJob(ctx context.Context, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.store.Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var job models.Job
	if err := s.store.Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns every stored job, newest first
func (s *Store) ListJobs(ctx context.Context) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var jobs []models.Job
	if err := s.store.Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	out := make([]*models.Job, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.Delete(jobID, models.Job{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
