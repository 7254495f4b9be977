package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/models"
)

// Registry is the single owner of job state. Every operation is atomic under
// one mutex and callers only ever receive snapshots.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*models.Job

	events  interfaces.EventService      // optional
	history interfaces.JobHistoryStorage // optional
	logger  arbor.ILogger
}

type RegistryOption func(*Registry)

// WithEventService publishes job_status and job_progress events
func WithEventService(events interfaces.EventService) RegistryOption {
	return func(r *Registry) { r.events = events }
}

// WithHistory saves a snapshot on every status change
func WithHistory(history interfaces.JobHistoryStorage) RegistryOption {
	return func(r *Registry) { r.history = history }
}

func NewRegistry(logger arbor.ILogger, opts ...RegistryOption) *Registry {
	r := &Registry{
		jobs:   make(map[string]*models.Job),
		logger: logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Restore loads saved jobs. Jobs that were stopping when the process ended are marked stopped,
// other unfinished jobs are marked failed.
func (r *Registry) Restore(ctx context.Context) error {
	if r.history == nil {
		return nil
	}

	saved, err := r.history.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load job history: %w", err)
	}

	var interrupted []*models.Job
	r.mu.Lock()
	for _, job := range saved {
		if _, exists := r.jobs[job.ID]; exists {
			continue
		}
		if !job.Status.IsTerminal() {
			now := time.Now()
			if job.Status == models.JobStatusStopping {
				job.Status = models.JobStatusStopped
				job.StopRequested = true
				job.Error = StoppedByUser
			} else {
				job.Status = models.JobStatusFailed
				job.Error = "Interrupted: service restarted while the job was running"
			}
			job.CompletedAt = &now
			job.UpdatedAt = now
			interrupted = append(interrupted, job.Clone())
		}
		r.jobs[job.ID] = job
	}
	r.mu.Unlock()

	for _, job := range interrupted {
		r.save(job)
	}

	r.logger.Info().Int("jobs", len(saved)).Int("interrupted", len(interrupted)).Msg("Job history restored")
	return nil
}

// Create registers a new pending job and returns its ID
func (r *Registry) Create(startURL string, categories []string) string {
	now := time.Now()
	job := &models.Job{
		ID:                 common.NewJobID(),
		StartURL:           startURL,
		SelectedCategories: append([]string(nil), categories...),
		Status:             models.JobStatusPending,
		Progress:           map[string]interface{}{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	snapshot := job.Clone()
	r.mu.Unlock()

	r.logger.Debug().Str("job_id", job.ID).Str("start_url", startURL).Msg("Job created")
	r.statusChanged(snapshot)
	return job.ID
}

// Get returns a snapshot of one job
func (r *Registry) Get(id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// List returns snapshots of every job, newest first
func (r *Registry) List() []*models.Job {
	r.mu.Lock()
	out := make([]*models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateProgress merges partial into the job's progress map
func (r *Registry) UpdateProgress(id string, partial map[string]interface{}) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Progress == nil {
		job.Progress = make(map[string]interface{}, len(partial))
	}
	for k, v := range partial {
		job.Progress[k] = v
	}
	job.UpdatedAt = time.Now()
	status := job.Status
	r.mu.Unlock()

	r.publish(interfaces.EventJobProgress, map[string]interface{}{
		"job_id":   id,
		"status":   string(status),
		"progress": partial,
	})
	return nil
}

// MarkRunning moves a pending job to running. A stop requested while the job
// was pending moves it on to stopping right away.
func (r *Registry) MarkRunning(id string) error {
	stopRequested := false
	err := r.transition(id, func(job *models.Job, now time.Time) error {
		if job.Status != models.JobStatusPending {
			return invalidTransition(job.Status, models.JobStatusRunning)
		}
		job.Status = models.JobStatusRunning
		job.StartedAt = &now
		stopRequested = job.StopRequested
		return nil
	})
	if err != nil || !stopRequested {
		return err
	}

	return r.transition(id, func(job *models.Job, now time.Time) error {
		if job.Status != models.JobStatusRunning {
			return invalidTransition(job.Status, models.JobStatusStopping)
		}
		job.Status = models.JobStatusStopping
		return nil
	})
}

// MarkCompleted finishes a running job. A stopping job ends stopped instead.
func (r *Registry) MarkCompleted(id string, result *models.RunSummary) error {
	return r.transition(id, func(job *models.Job, now time.Time) error {
		switch job.Status {
		case models.JobStatusRunning:
			job.Status = models.JobStatusCompleted
		case models.JobStatusStopping:
			job.Status = models.JobStatusStopped
			job.Error = StoppedByUser
		default:
			return invalidTransition(job.Status, models.JobStatusCompleted)
		}
		job.Result = result
		job.CompletedAt = &now
		return nil
	})
}

// MarkFailed records a run-level failure
func (r *Registry) MarkFailed(id string, message string) error {
	return r.transition(id, func(job *models.Job, now time.Time) error {
		if job.Status != models.JobStatusPending && job.Status != models.JobStatusRunning {
			return invalidTransition(job.Status, models.JobStatusFailed)
		}
		job.Status = models.JobStatusFailed
		job.Error = message
		job.CompletedAt = &now
		return nil
	})
}

// MarkStopped ends a stopping job as stopped
func (r *Registry) MarkStopped(id string, result *models.RunSummary, message string) error {
	return r.transition(id, func(job *models.Job, now time.Time) error {
		if job.Status != models.JobStatusStopping {
			return invalidTransition(job.Status, models.JobStatusStopped)
		}
		job.Status = models.JobStatusStopped
		job.StopRequested = true
		job.Error = message
		job.Result = result
		job.CompletedAt = &now
		return nil
	})
}

// RequestStop sets the stop flag and moves a running job to stopping.
// Repeated calls and calls on finished jobs change nothing.
func (r *Registry) RequestStop(id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() || job.StopRequested {
		r.mu.Unlock()
		return nil
	}

	job.StopRequested = true
	if job.Status == models.JobStatusRunning {
		job.Status = models.JobStatusStopping
	}
	job.UpdatedAt = time.Now()
	snapshot := job.Clone()
	r.mu.Unlock()

	r.logger.Info().Str("job_id", id).Str("status", string(snapshot.Status)).Msg("Stop requested")
	r.statusChanged(snapshot)
	return nil
}

// ShouldStop is the only read path for cancellation checks
func (r *Registry) ShouldStop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	return ok && job.StopRequested
}

// Delete removes a finished job
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Status.IsTerminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrJobActive, id, job.Status)
	}
	delete(r.jobs, id)
	r.mu.Unlock()

	if r.history != nil {
		if err := r.history.DeleteJob(context.Background(), id); err != nil {
			r.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to delete job history")
		}
	}
	return nil
}

func (r *Registry) transition(id string, apply func(job *models.Job, now time.Time) error) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	now := time.Now()
	if err := apply(job, now); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, err)
	}
	job.UpdatedAt = now
	snapshot := job.Clone()
	r.mu.Unlock()

	r.statusChanged(snapshot)
	return nil
}

func invalidTransition(from, to models.JobStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// statusChanged persists and publishes a snapshot, outside the lock
func (r *Registry) statusChanged(job *models.Job) {
	r.save(job)
	payload := map[string]interface{}{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"start_url":  job.StartURL,
		"updated_at": job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	if job.Result != nil {
		payload["result"] = job.Result
	}
	r.publish(interfaces.EventJobStatus, payload)
}

func (r *Registry) save(job *models.Job) {
	if r.history == nil {
		return
	}
	if err := r.history.SaveJob(context.Background(), job); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to save job history")
	}
}

func (r *Registry) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish job event")
	}
}
