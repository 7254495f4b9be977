package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/jobs"
	"github.com/ternarybob/covera/internal/models"
)

// JobService is the job surface the API drives
type JobService interface {
	StartJob(req models.StartJobRequest) (*models.Job, error)
	GetJob(id string) (*models.Job, error)
	ListJobs() []*models.Job
	ListActiveJobs() []*models.Job
	IsActive(id string) bool
	StopJob(id string) (*models.Job, error)
	DeleteJob(id string) error
}

// ResultLister reads persisted results for a job
type ResultLister interface {
	ListByJob(ctx context.Context, jobID string) ([]*models.ResultRecord, error)
}

// JobHandler handles job-related API requests
type JobHandler struct {
	jobs    JobService
	results ResultLister
	logger  arbor.ILogger
}

func NewJobHandler(jobService JobService, results ResultLister, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:    jobService,
		results: results,
		logger:  logger,
	}
}

type jobView struct {
	*models.Job
	Active bool `json:"active"`
}

// StartJobHandler registers and launches a job
// POST /jobs
func (h *JobHandler) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.StartJobRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	job, err := h.jobs.StartJob(req)
	if err != nil {
		var verr *jobs.ValidationError
		if errors.As(err, &verr) {
			WriteError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error().Err(err).Str("start_url", req.StartURL).Msg("Failed to start job")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().Str("job_id", job.ID).Str("start_url", job.StartURL).Msg("Job accepted")
	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": "started",
	})
}

// ListJobsHandler returns every known job, newest first
// GET /jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	list := h.jobs.ListJobs()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJobHandler returns one job snapshot
// GET /jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, jobView{Job: job, Active: h.jobs.IsActive(job.ID)})
}

// GetJobStatusHandler returns the compact status of a job
// GET /jobs/{id}/status
func (h *JobHandler) GetJobStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":     job.ID,
		"status":     job.Status,
		"progress":   job.Progress,
		"updated_at": job.UpdatedAt.Format(time.RFC3339),
		"active":     h.jobs.IsActive(job.ID),
	})
}

// StopJobHandler requests a cooperative stop without waiting for it
// POST /jobs/{id}/stop
func (h *JobHandler) StopJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := pathSegment(r, 1)
	if _, err := h.jobs.StopJob(jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Stop requested via API")
	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusStopping),
	})
}

// DeleteJobHandler removes a finished job
// DELETE /jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	jobID := pathSegment(r, 1)
	if err := h.jobs.DeleteJob(jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteSuccess(w, "Job "+jobID+" deleted")
}

// GetJobResultsHandler returns the persisted results of a job
// GET /jobs/{id}/results
func (h *JobHandler) GetJobResultsHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	records, err := h.results.ListByJob(r.Context(), job.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to list job results")
		WriteError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  job.ID,
		"results": records,
		"count":   len(records),
	})
}

// ActiveJobsHandler lists the IDs of jobs whose pipeline is running
// GET /active-jobs
func (h *JobHandler) ActiveJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	active := h.jobs.ListActiveJobs()
	ids := make([]string, 0, len(active))
	for _, job := range active {
		ids = append(ids, job.ID)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"active_jobs": ids,
		"count":       len(ids),
	})
}

func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	if !RequireMethod(w, r, http.MethodGet) {
		return nil, false
	}
	jobID := pathSegment(r, 1)
	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return nil, false
	}
	return job, true
}

func (h *JobHandler) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
	case errors.Is(err, jobs.ErrJobActive):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
