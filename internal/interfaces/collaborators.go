package interfaces

import (
	"context"

	"github.com/ternarybob/covera/internal/models"
)

// Discoverer lists candidate product page URLs reachable from a start URL
type Discoverer interface {
	Discover(ctx context.Context, startURL string) ([]string, error)
}

// Fetcher downloads one page and extracts its candidate product records
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]models.CandidateRecord, error)
}

// Classifier decides insurance eligibility for a validated product
type Classifier interface {
	Classify(ctx context.Context, record models.ValidatedRecord) (*models.Classification, error)
}

// Pricer computes premiums for an eligible product
type Pricer interface {
	Price(ctx context.Context, req models.PricingRequest) (*models.Premiums, error)
}

// ResultStore persists result records. InsertBatch is all-or-nothing.
type ResultStore interface {
	InsertBatch(ctx context.Context, records []*models.ResultRecord) error
	Insert(ctx context.Context, record *models.ResultRecord) error
	ListByJob(ctx context.Context, jobID string) ([]*models.ResultRecord, error)
	EnsurePartner(ctx context.Context, domain string) (*models.Partner, error)
	Close() error
}

// JobHistoryStorage keeps snapshots of jobs so finished runs survive restarts
type JobHistoryStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}
