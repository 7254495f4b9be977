package jobs

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/models"
)

// ValidationError is returned when a start request fails validation
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid start request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Manager is the entry point the API, scheduler and tools use to drive jobs
type Manager struct {
	registry   *Registry
	supervisor *Supervisor
	validate   *validator.Validate
	logger     arbor.ILogger
}

func NewManager(registry *Registry, supervisor *Supervisor, logger arbor.ILogger) *Manager {
	return &Manager{
		registry:   registry,
		supervisor: supervisor,
		validate:   validator.New(),
		logger:     logger,
	}
}

// StartJob validates the request, registers a pending job and launches it
func (m *Manager) StartJob(req models.StartJobRequest) (*models.Job, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if u, err := url.Parse(req.StartURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Err: fmt.Errorf("start_url must be an absolute http or https URL")}
	}

	id := m.registry.Create(req.StartURL, req.SelectedCategories)
	if err := m.supervisor.Start(id); err != nil {
		if failErr := m.registry.MarkFailed(id, FailureMessage(err)); failErr != nil {
			m.logger.Warn().Err(failErr).Str("job_id", id).Msg("Failed to mark unstarted job failed")
		}
		return nil, fmt.Errorf("failed to start job %s: %w", id, err)
	}

	return m.registry.Get(id)
}

func (m *Manager) GetJob(id string) (*models.Job, error) {
	return m.registry.Get(id)
}

func (m *Manager) ListJobs() []*models.Job {
	return m.registry.List()
}

// ListActiveJobs returns the jobs whose pipeline is still running
func (m *Manager) ListActiveJobs() []*models.Job {
	ids := m.supervisor.ListActive()
	out := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		if job, err := m.registry.Get(id); err == nil {
			out = append(out, job)
		}
	}
	return out
}

// IsActive reports whether the job's pipeline is still running
func (m *Manager) IsActive(id string) bool {
	return m.supervisor.IsActive(id)
}

// StopJob requests a cooperative stop and returns the job as it now stands
func (m *Manager) StopJob(id string) (*models.Job, error) {
	if err := m.supervisor.Stop(id); err != nil {
		return nil, err
	}
	return m.registry.Get(id)
}

// DeleteJob removes a finished job. Active jobs are refused.
func (m *Manager) DeleteJob(id string) error {
	if m.supervisor.IsActive(id) {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	return m.registry.Delete(id)
}

// Shutdown stops every active job and waits for them within ctx
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.supervisor.Shutdown(ctx)
}
