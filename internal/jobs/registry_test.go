package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/models"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (e *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error   { return nil }
func (e *recordingEvents) Unsubscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }
func (e *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return e.Publish(ctx, event)
}
func (e *recordingEvents) Close() error { return nil }

func (e *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) statuses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		if ev.Type == interfaces.EventJobStatus {
			out = append(out, ev.Payload.(map[string]interface{})["status"].(string))
		}
	}
	return out
}

type memoryHistory struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{jobs: make(map[string]*models.Job)}
}

func (h *memoryHistory) SaveJob(ctx context.Context, job *models.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs[job.ID] = job.Clone()
	return nil
}

func (h *memoryHistory) GetJob(ctx context.Context, id string) (*models.Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (h *memoryHistory) ListJobs(ctx context.Context) ([]*models.Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.Job
	for _, job := range h.jobs {
		out = append(out, job.Clone())
	}
	return out, nil
}

func (h *memoryHistory) DeleteJob(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.jobs, id)
	return nil
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", []string{"ELECTRONIC_PRODUCTS"})

	job, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "https://noon.com", job.StartURL)
	assert.Equal(t, []string{"ELECTRONIC_PRODUCTS"}, job.SelectedCategories)
	assert.False(t, job.StopRequested)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRegistry_HappyPath(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", nil)

	require.NoError(t, r.MarkRunning(id))
	job, _ := r.Get(id)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	summary := &models.RunSummary{Outcome: models.RunOutcomeCompleted}
	require.NoError(t, r.MarkCompleted(id, summary))

	job, _ = r.Get(id)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, summary, job.Result)
}

func TestRegistry_IllegalTransitionsLeaveJobUntouched(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", nil)

	assert.ErrorIs(t, r.MarkCompleted(id, nil), ErrInvalidTransition)
	assert.ErrorIs(t, r.MarkStopped(id, nil, StoppedByUser), ErrInvalidTransition)

	require.NoError(t, r.MarkRunning(id))
	assert.ErrorIs(t, r.MarkRunning(id), ErrInvalidTransition)
	assert.ErrorIs(t, r.MarkStopped(id, nil, StoppedByUser), ErrInvalidTransition)

	require.NoError(t, r.MarkFailed(id, "Error: boom"))
	before, _ := r.Get(id)

	assert.ErrorIs(t, r.MarkCompleted(id, nil), ErrInvalidTransition)
	assert.ErrorIs(t, r.MarkRunning(id), ErrInvalidTransition)
	assert.ErrorIs(t, r.MarkStopped(id, nil, StoppedByUser), ErrInvalidTransition)

	after, _ := r.Get(id)
	assert.Equal(t, before, after)
	assert.Equal(t, "Error: boom", after.Error)
}

func TestRegistry_StoppingNeverFollowsTerminal(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())

	completed := r.Create("https://a.ae", nil)
	require.NoError(t, r.MarkRunning(completed))
	require.NoError(t, r.MarkCompleted(completed, nil))

	failed := r.Create("https://b.ae", nil)
	require.NoError(t, r.MarkRunning(failed))
	require.NoError(t, r.MarkFailed(failed, "Error: x"))

	for _, id := range []string{completed, failed} {
		require.NoError(t, r.RequestStop(id))
		job, _ := r.Get(id)
		assert.NotEqual(t, models.JobStatusStopping, job.Status)
		assert.False(t, r.ShouldStop(id))
	}
}

func TestRegistry_RequestStopIsIdempotent(t *testing.T) {
	events := &recordingEvents{}
	r := NewRegistry(arbor.NewLogger(), WithEventService(events))
	id := r.Create("https://noon.com", nil)
	require.NoError(t, r.MarkRunning(id))

	require.NoError(t, r.RequestStop(id))
	require.NoError(t, r.RequestStop(id))

	job, _ := r.Get(id)
	assert.Equal(t, models.JobStatusStopping, job.Status)
	assert.True(t, r.ShouldStop(id))
	assert.Equal(t, []string{"pending", "running", "stopping"}, events.statuses())

	assert.ErrorIs(t, r.RequestStop("missing"), ErrJobNotFound)
}

func TestRegistry_CompletingAfterStopEndsStopped(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", nil)
	require.NoError(t, r.MarkRunning(id))
	require.NoError(t, r.RequestStop(id))

	require.NoError(t, r.MarkCompleted(id, &models.RunSummary{}))

	job, _ := r.Get(id)
	assert.Equal(t, models.JobStatusStopped, job.Status)
	assert.Equal(t, StoppedByUser, job.Error)
}

func TestRegistry_StopWhilePendingKeepsFlag(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", nil)

	require.NoError(t, r.RequestStop(id))
	job, _ := r.Get(id)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.True(t, r.ShouldStop(id))
}

func TestRegistry_StartAfterPendingStopPassesThroughStopping(t *testing.T) {
	events := &recordingEvents{}
	r := NewRegistry(arbor.NewLogger(), WithEventService(events))
	id := r.Create("https://noon.com", nil)
	require.NoError(t, r.RequestStop(id))

	require.NoError(t, r.MarkRunning(id))
	job, _ := r.Get(id)
	assert.Equal(t, models.JobStatusStopping, job.Status)
	require.NotNil(t, job.StartedAt)

	require.NoError(t, r.MarkStopped(id, nil, StoppedByUser))
	assert.Equal(t, []string{"pending", "pending", "running", "stopping", "stopped"}, events.statuses())
}

func TestRegistry_UpdateProgressMerges(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", nil)

	require.NoError(t, r.UpdateProgress(id, map[string]interface{}{"phase": "discovery", "urls_total": 0}))
	require.NoError(t, r.UpdateProgress(id, map[string]interface{}{"phase": "scraping", "validated": 4}))

	job, _ := r.Get(id)
	assert.Equal(t, "scraping", job.Progress["phase"])
	assert.Equal(t, 0, job.Progress["urls_total"])
	assert.Equal(t, 4, job.Progress["validated"])

	assert.ErrorIs(t, r.UpdateProgress("missing", nil), ErrJobNotFound)
}

func TestRegistry_SnapshotsAreIsolated(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	id := r.Create("https://noon.com", []string{"HOME_APPLIANCES"})
	require.NoError(t, r.UpdateProgress(id, map[string]interface{}{"phase": "setup"}))

	job, _ := r.Get(id)
	job.Progress["phase"] = "tampered"
	job.SelectedCategories[0] = "tampered"
	job.Status = models.JobStatusCompleted

	fresh, _ := r.Get(id)
	assert.Equal(t, "setup", fresh.Progress["phase"])
	assert.Equal(t, "HOME_APPLIANCES", fresh.SelectedCategories[0])
	assert.Equal(t, models.JobStatusPending, fresh.Status)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	first := r.Create("https://a.ae", nil)
	time.Sleep(2 * time.Millisecond)
	second := r.Create("https://b.ae", nil)

	jobs := r.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].ID)
	assert.Equal(t, first, jobs[1].ID)
}

func TestRegistry_Delete(t *testing.T) {
	history := newMemoryHistory()
	r := NewRegistry(arbor.NewLogger(), WithHistory(history))
	id := r.Create("https://noon.com", nil)
	require.NoError(t, r.MarkRunning(id))

	assert.ErrorIs(t, r.Delete(id), ErrJobActive)

	require.NoError(t, r.MarkCompleted(id, nil))
	require.NoError(t, r.Delete(id))

	_, err := r.Get(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = history.GetJob(context.Background(), id)
	assert.Error(t, err)
	assert.ErrorIs(t, r.Delete(id), ErrJobNotFound)
}

func TestRegistry_RestoreSettlesInterruptedJobs(t *testing.T) {
	history := newMemoryHistory()
	previous := NewRegistry(arbor.NewLogger(), WithHistory(history))

	done := previous.Create("https://a.ae", nil)
	require.NoError(t, previous.MarkRunning(done))
	require.NoError(t, previous.MarkCompleted(done, &models.RunSummary{Outcome: models.RunOutcomeCompleted}))

	crashed := previous.Create("https://b.ae", nil)
	require.NoError(t, previous.MarkRunning(crashed))

	stopping := previous.Create("https://c.ae", nil)
	require.NoError(t, previous.MarkRunning(stopping))
	require.NoError(t, previous.RequestStop(stopping))

	queued := previous.Create("https://d.ae", nil)
	require.NoError(t, previous.RequestStop(queued))

	r := NewRegistry(arbor.NewLogger(), WithHistory(history))
	require.NoError(t, r.Restore(context.Background()))

	job, err := r.Get(done)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	job, err = r.Get(crashed)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "Interrupted")

	saved, _ := history.GetJob(context.Background(), crashed)
	assert.Equal(t, models.JobStatusFailed, saved.Status)

	job, err = r.Get(stopping)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStopped, job.Status)
	assert.Equal(t, StoppedByUser, job.Error)
	require.NotNil(t, job.CompletedAt)

	saved, _ = history.GetJob(context.Background(), stopping)
	assert.Equal(t, models.JobStatusStopped, saved.Status)

	job, err = r.Get(queued)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}
