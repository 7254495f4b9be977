package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/covera/internal/models"
)

// memoryStore is an in-memory ResultStore recording batch sizes
type memoryStore struct {
	mu         sync.Mutex
	records    map[string]*models.ResultRecord
	batchSizes []int
	failBatch  bool
	failInsert map[string]bool
	partnerErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records:    make(map[string]*models.ResultRecord),
		failInsert: make(map[string]bool),
	}
}

func (s *memoryStore) InsertBatch(ctx context.Context, records []*models.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSizes = append(s.batchSizes, len(records))
	if s.failBatch {
		return errors.New("batch rejected")
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *memoryStore) Insert(ctx context.Context, record *models.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert[record.ID] {
		return errors.New("insert rejected")
	}
	s.records[record.ID] = record
	return nil
}

func (s *memoryStore) ListByJob(ctx context.Context, jobID string) ([]*models.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ResultRecord
	for _, r := range s.records {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product.URL < out[j].Product.URL })
	return out, nil
}

func (s *memoryStore) EnsurePartner(ctx context.Context, domain string) (*models.Partner, error) {
	if s.partnerErr != nil {
		return nil, s.partnerErr
	}
	return &models.Partner{ID: "partner-1", Domain: domain, CompanyName: "Shop", Country: "AE"}, nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memoryStore) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batchSizes...)
}

type staticDiscoverer struct {
	urls []string
	err  error
}

func (d *staticDiscoverer) Discover(ctx context.Context, startURL string) ([]string, error) {
	return d.urls, d.err
}

// pageFetcher serves candidate records per page URL
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string][]models.CandidateRecord
	errs  map[string]error
	calls int
	delay time.Duration
}

func (f *pageFetcher) Fetch(ctx context.Context, pageURL string) ([]models.CandidateRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[pageURL]; err != nil {
		return nil, err
	}
	return append([]models.CandidateRecord(nil), f.pages[pageURL]...), nil
}

func (f *pageFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// funcClassifier delegates to fn
type funcClassifier func(ctx context.Context, r models.ValidatedRecord) (*models.Classification, error)

func (f funcClassifier) Classify(ctx context.Context, r models.ValidatedRecord) (*models.Classification, error) {
	return f(ctx, r)
}

func eligibleClassifier() funcClassifier {
	return func(ctx context.Context, r models.ValidatedRecord) (*models.Classification, error) {
		return &models.Classification{Eligible: true, Reason: "Product is covered", RiskProfile: "ELECTRONIC_PRODUCTS"}, nil
	}
}

type flatPricer struct{}

func (flatPricer) Price(ctx context.Context, req models.PricingRequest) (*models.Premiums, error) {
	annual := req.ProductValue * 0.1
	p := &models.Premiums{
		RiskProfile: req.RiskProfile,
		TwelveMonth: models.Money{Amount: annual, Currency: "AED"},
	}
	if req.Plan == models.PricingPlanAssurmax {
		p.Assurmax = &models.AssurmaxOffer{PackCap: 5000, MaxProducts: 3}
	}
	return p, nil
}
