package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

// InsertBatch writes every record in one badger transaction. Either all land or none do.
func (s *Store) InsertBatch(ctx context.Context, records []*models.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.store.Badger().Update(func(tx *badger.Txn) error {
		for _, rec := range records {
			if rec.ID == "" {
				return fmt.Errorf("result record for %q has no ID", rec.Product.Name)
			}
			if err := s.store.TxUpsert(tx, rec.ID, rec); err != nil {
				return fmt.Errorf("failed to write result %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch of %d results rolled back: %w", len(records), err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, record *models.ResultRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("result record for %q has no ID", record.Product.Name)
	}
	if err := s.store.Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to write result %s: %w", record.ID, err)
	}
	return nil
}

// ListByJob returns a job's records oldest first
func (s *Store) ListByJob(ctx context.Context, jobID string) ([]*models.ResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []models.ResultRecord
	if err := s.store.Find(&records, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return nil, fmt.Errorf("failed to list results for job %s: %w", jobID, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	out := make([]*models.ResultRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

// EnsurePartner returns the partner for a domain, creating it on first use
func (s *Store) EnsurePartner(ctx context.Context, domain string) (*models.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	domain = common.NormalizeHost(domain)
	if domain == "" {
		return nil, fmt.Errorf("partner domain is required")
	}

	s.partnerMu.Lock()
	defer s.partnerMu.Unlock()

	var partner models.Partner
	err := s.store.Get(domain, &partner)
	if err == nil {
		return &partner, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to load partner %s: %w", domain, err)
	}

	partner = models.Partner{
		ID:          uuid.New().String(),
		Domain:      domain,
		CompanyName: common.PartnerNameForDomain(domain),
		WebsiteURL:  "https://" + domain,
		Country:     common.CountryForDomain(domain),
		Status:      models.PartnerStatusActive,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Insert(domain, &partner); err != nil {
		return nil, fmt.Errorf("failed to create partner %s: %w", domain, err)
	}

	s.logger.Info().
		Str("partner_id", partner.ID).
		Str("domain", domain).
		Str("country", partner.Country).
		Msg("Partner created")
	return &partner, nil
}
