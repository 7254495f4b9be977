package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

func TestNewStoreRejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewStore(ctx, &common.PostgresConfig{}, arbor.NewLogger())
	assert.ErrorContains(t, err, "dsn")

	_, err = NewStore(ctx, &common.PostgresConfig{DSN: "postgres://localhost/covera", Schema: "bad-schema;"}, arbor.NewLogger())
	assert.ErrorContains(t, err, "schema")
}

// newTestStore connects to COVERA_TEST_POSTGRES_DSN inside a throwaway schema
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COVERA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COVERA_TEST_POSTGRES_DSN not set")
	}

	schema := "covera_test_" + uuid.New().String()[:8]
	store, err := NewStore(context.Background(), &common.PostgresConfig{DSN: dsn, MaxConns: 2, Schema: schema}, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		_ = store.Close()
	})
	return store
}

func record(id, jobID string, created time.Time) *models.ResultRecord {
	return &models.ResultRecord{
		ID:        id,
		JobID:     jobID,
		PartnerID: "partner-1",
		Product:   models.ValidatedRecord{Name: "Robot vacuum " + id, Price: 1899, Currency: "AED", URL: "https://shop.ae/" + id},
		Enrichment: models.Enrichment{
			Eligible:    true,
			Reason:      "Product is covered",
			RiskProfile: "HOME_APPLIANCES",
			Market:      common.MarketUAE,
		},
		CreatedAt: created,
	}
}

func TestResultsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.InsertBatch(ctx, []*models.ResultRecord{
		record("r2", "job-a", base.Add(time.Second)),
		record("r1", "job-a", base),
	}))
	require.NoError(t, store.Insert(ctx, record("r3", "job-b", base)))

	records, err := store.ListByJob(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, "HOME_APPLIANCES", records[0].Enrichment.RiskProfile)
	assert.Equal(t, 1899.0, records[0].Product.Price)
}

func TestInsertBatchRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InsertBatch(ctx, []*models.ResultRecord{record("r1", "job-a", time.Now()), {JobID: "job-a"}})
	require.Error(t, err)

	records, err := store.ListByJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEnsurePartnerAndJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsurePartner(ctx, "www.jumbo.ae")
	require.NoError(t, err)
	again, err := store.EnsurePartner(ctx, "jumbo.ae")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Jumbo", first.CompanyName)
	assert.Equal(t, "AE", first.Country)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.SaveJob(ctx, &models.Job{
			ID:        fmt.Sprintf("job-%d", i),
			Status:    models.JobStatusStopped,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Error:     "Stopped by user",
		}))
	}
	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)

	require.NoError(t, store.DeleteJob(ctx, "job-0"))
	_, err = store.GetJob(ctx, "job-0")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
