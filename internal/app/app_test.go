package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

func testConfig(t *testing.T) *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Classifier.Provider = "rules"
	return cfg
}

func TestNewAndClose(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t), arbor.NewLogger())
	require.NoError(t, err)

	assert.NotNil(t, app.JobHandler)
	assert.NotNil(t, app.WSHandler)
	assert.Nil(t, app.Provider)
	assert.Nil(t, app.Scheduler)
	assert.Contains(t, app.Pricer.Profiles(), "HOME_APPLIANCES")
	assert.NotEmpty(t, app.Categories.Definitions())

	_, err = app.JobManager.StartJob(models.StartJobRequest{StartURL: "mailto:sales@shop.ae"})
	assert.Error(t, err)

	shutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, app.Close(shutdown))
}

func TestNewRejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Classifier.Provider = "oracle"
	_, err := New(ctx, cfg, arbor.NewLogger())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Entries = []common.ScheduledEntry{{Name: "spam", Schedule: "* * * * *", StartURL: "https://shop.ae"}}
	_, err = New(ctx, cfg, arbor.NewLogger())
	assert.ErrorContains(t, err, "scheduled")

	cfg = testConfig(t)
	cfg.Storage.Type = "mongo"
	_, err = New(ctx, cfg, arbor.NewLogger())
	assert.Error(t, err)
}
