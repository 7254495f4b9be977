package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobClone_IsDeep(t *testing.T) {
	started := time.Now()
	job := &Job{
		ID:                 "job-1",
		SelectedCategories: []string{"HOME_APPLIANCES"},
		Status:             JobStatusRunning,
		Progress: map[string]interface{}{
			"phase": "scraping",
			"stats": map[string]interface{}{"validated": 3},
		},
		StartedAt: &started,
		Result:    &RunSummary{Outcome: RunOutcomeCompleted},
	}

	clone := job.Clone()
	clone.SelectedCategories[0] = "CHANGED"
	clone.Progress["phase"] = "changed"
	clone.Progress["stats"].(map[string]interface{})["validated"] = 99
	*clone.StartedAt = started.Add(time.Hour)
	clone.Result.Outcome = RunOutcomeStopped

	assert.Equal(t, "HOME_APPLIANCES", job.SelectedCategories[0])
	assert.Equal(t, "scraping", job.Progress["phase"])
	assert.Equal(t, 3, job.Progress["stats"].(map[string]interface{})["validated"])
	assert.Equal(t, started, *job.StartedAt)
	assert.Equal(t, RunOutcomeCompleted, job.Result.Outcome)
}

func TestJobClone_Nil(t *testing.T) {
	var job *Job
	assert.Nil(t, job.Clone())
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.False(t, JobStatusStopping.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusStopped.IsTerminal())
}

func TestRunCounters_ToMap(t *testing.T) {
	m := RunCounters{Discovered: 10, Duplicate: 1, Lost: 2}.ToMap()
	assert.Equal(t, 10, m["discovered"])
	assert.Equal(t, 1, m["duplicate"])
	assert.Equal(t, 2, m["lost"])
	assert.Len(t, m, 14)
}
