package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/models"
)

func newTestManager(runner PipelineRunner) (*Manager, *Registry) {
	registry, supervisor := newTestSupervisor(runner)
	return NewManager(registry, supervisor, arbor.NewLogger()), registry
}

func TestManager_StartJobValidates(t *testing.T) {
	manager, registry := newTestManager(blockingRunner(nil))

	tests := []models.StartJobRequest{
		{},
		{StartURL: "not a url"},
		{StartURL: "ftp://shop.ae"},
		{StartURL: "httpx://shop.ae"},
		{StartURL: "https://shop.ae", SelectedCategories: []string{""}},
	}
	for _, req := range tests {
		_, err := manager.StartJob(req)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "request %+v", req)
	}
	assert.Empty(t, registry.List())
}

func TestManager_Lifecycle(t *testing.T) {
	started := make(chan string, 1)
	manager, registry := newTestManager(blockingRunner(started))

	job, err := manager.StartJob(models.StartJobRequest{StartURL: "https://shop.ae", SelectedCategories: []string{"Phones"}})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never started")
	}

	active := manager.ListActiveJobs()
	require.Len(t, active, 1)
	assert.Equal(t, job.ID, active[0].ID)
	assert.Len(t, manager.ListJobs(), 1)
	assert.True(t, manager.IsActive(job.ID))

	err = manager.DeleteJob(job.ID)
	assert.ErrorIs(t, err, ErrJobActive)

	stopping, err := manager.StopJob(job.ID)
	require.NoError(t, err)
	assert.True(t, stopping.StopRequested)

	waitForStatus(t, registry, job.ID, models.JobStatusStopped)
	require.Eventually(t, func() bool { return len(manager.ListActiveJobs()) == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, manager.DeleteJob(job.ID))
	_, err = manager.GetJob(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = manager.StopJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, manager.Shutdown(context.Background()))
}
