package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/metrics"
	"github.com/ternarybob/covera/internal/models"
	"github.com/ternarybob/covera/internal/pipeline"
)

// PipelineRunner executes one pipeline run
type PipelineRunner interface {
	Run(ctx context.Context, in pipeline.Input) (*models.RunSummary, error)
}

// PanicError wraps a value recovered from a pipeline goroutine
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type activeJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor runs each job's pipeline in its own goroutine and settles the
// registry when it returns
type Supervisor struct {
	registry *Registry
	runner   PipelineRunner
	logger   arbor.ILogger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	stopPoll  time.Duration
	mu        sync.Mutex
	active    map[string]*activeJob
	wg        sync.WaitGroup
}

func NewSupervisor(registry *Registry, runner PipelineRunner, logger arbor.ILogger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		registry:  registry,
		runner:    runner,
		logger:    logger,
		baseCtx:   ctx,
		cancelAll: cancel,
		stopPoll:  100 * time.Millisecond,
		active:    make(map[string]*activeJob),
	}
}

// Start marks a pending job running and launches its pipeline. It does not wait for the run.
func (s *Supervisor) Start(id string) error {
	job, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, running := s.active[id]; running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	if err := s.registry.MarkRunning(id); err != nil {
		s.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	a := &activeJob{cancel: cancel, done: make(chan struct{})}
	s.active[id] = a
	s.wg.Add(1)
	activeCount := len(s.active)
	s.mu.Unlock()

	metrics.UpdateActiveJobsMetric(activeCount)

	jobLogger := s.logger.WithCorrelationId(id)
	jobLogger.Info().Str("job_id", id).Str("start_url", job.StartURL).Msg("Job started")

	common.SafeGo(jobLogger, "stop-watcher:"+id, func() {
		s.watchStop(ctx, id, cancel)
	}, nil)

	input := pipeline.Input{
		JobID:              id,
		StartURL:           job.StartURL,
		SelectedCategories: job.SelectedCategories,
		Progress:           s.progressReporter(id),
		ShouldStop:         func() bool { return s.registry.ShouldStop(id) },
	}

	common.SafeGo(jobLogger, "job:"+id, func() {
		summary, err := s.runner.Run(ctx, input)
		s.settle(jobLogger, id, summary, err)
		s.finish(id, a)
	}, func(r interface{}) {
		s.settle(jobLogger, id, nil, &PanicError{Value: r})
		s.finish(id, a)
	})

	return nil
}

// Stop requests a cooperative stop and returns immediately
func (s *Supervisor) Stop(id string) error {
	return s.registry.RequestStop(id)
}

// IsActive reports whether a job's pipeline goroutine is alive
func (s *Supervisor) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// ListActive returns the IDs of jobs with a live pipeline goroutine
func (s *Supervisor) ListActive() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Wait blocks until the job's goroutine has exited or ctx is done
func (s *Supervisor) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	a, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown requests a stop on every active job and waits for their goroutines.
// When ctx expires first the remaining runs are cancelled outright.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, id := range s.ListActive() {
		if err := s.registry.RequestStop(id); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to request stop during shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelAll()
		s.logger.Info().Msg("All jobs stopped")
		return nil
	case <-ctx.Done():
		s.cancelAll()
		s.logger.Warn().Strs("active_jobs", s.ListActive()).Msg("Shutdown deadline reached, cancelling remaining jobs")
		return ctx.Err()
	}
}

func (s *Supervisor) progressReporter(id string) pipeline.ProgressReporter {
	return func(update map[string]interface{}) error {
		if err := s.registry.UpdateProgress(id, update); err != nil {
			return err
		}
		if s.registry.ShouldStop(id) {
			return pipeline.ErrStopped
		}
		return nil
	}
}

// watchStop cancels the run context once the stop flag is observed
func (s *Supervisor) watchStop(ctx context.Context, id string, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.stopPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.registry.ShouldStop(id) {
				cancel()
				return
			}
		}
	}
}

// settle records the outcome of a run in the registry
func (s *Supervisor) settle(logger arbor.ILogger, id string, summary *models.RunSummary, runErr error) {
	var err error
	switch {
	case runErr == nil:
		err = s.registry.MarkCompleted(id, summary)
	case errors.Is(runErr, pipeline.ErrStopped):
		err = s.markStopped(id, summary)
	default:
		message := FailureMessage(runErr)
		logger.Error().Err(runErr).Str("job_id", id).Msg("Job failed")
		err = s.registry.MarkFailed(id, message)
		if errors.Is(err, ErrInvalidTransition) {
			// A stop was requested while the run was failing
			err = s.markStopped(id, summary)
		}
	}
	if err != nil {
		logger.Error().Err(err).Str("job_id", id).Msg("Failed to record job outcome")
	}

	if job, getErr := s.registry.Get(id); getErr == nil {
		metrics.IncreaseJobsFinishedMetric(string(job.Status))
		logger.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("Job finished")
	}
}

// markStopped ends a job stopped, passing through stopping when no stop was requested yet
func (s *Supervisor) markStopped(id string, summary *models.RunSummary) error {
	if err := s.registry.RequestStop(id); err != nil {
		return err
	}
	return s.registry.MarkStopped(id, summary, StoppedByUser)
}

func (s *Supervisor) finish(id string, a *activeJob) {
	a.cancel()

	s.mu.Lock()
	delete(s.active, id)
	activeCount := len(s.active)
	s.mu.Unlock()

	close(a.done)
	metrics.UpdateActiveJobsMetric(activeCount)
	s.wg.Done()
}

// FailureMessage formats a run error as "<Type>: <message>" using the innermost error's type
func FailureMessage(err error) string {
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}

	name := fmt.Sprintf("%T", root)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "errorString", "wrapError", "wrapErrors", "joinError":
		name = "Error"
	}
	return fmt.Sprintf("%s: %s", name, err.Error())
}
