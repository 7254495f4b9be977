package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

func (s *Store) upsertResultSQL() string {
	return `INSERT INTO ` + s.table("result_records") + `
		(id, job_id, partner_id, eligible, risk_profile, product, enrichment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			eligible = EXCLUDED.eligible,
			risk_profile = EXCLUDED.risk_profile,
			product = EXCLUDED.product,
			enrichment = EXCLUDED.enrichment`
}

func resultArgs(rec *models.ResultRecord) ([]any, error) {
	product, err := json.Marshal(rec.Product)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product %s: %w", rec.ID, err)
	}
	enrichment, err := json.Marshal(rec.Enrichment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enrichment %s: %w", rec.ID, err)
	}
	return []any{
		rec.ID, rec.JobID, rec.PartnerID,
		rec.Enrichment.Eligible, rec.Enrichment.RiskProfile,
		product, enrichment, rec.CreatedAt,
	}, nil
}

// InsertBatch sends every record in one transaction. Either all land or none do.
func (s *Store) InsertBatch(ctx context.Context, records []*models.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := s.upsertResultSQL()
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("result record for %q has no ID", rec.Product.Name)
		}
		args, err := resultArgs(rec)
		if err != nil {
			return err
		}
		batch.Queue(query, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin result batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch of %d results rolled back: %w", len(records), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch of %d results rolled back: %w", len(records), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit result batch: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, record *models.ResultRecord) error {
	if record.ID == "" {
		return fmt.Errorf("result record for %q has no ID", record.Product.Name)
	}
	args, err := resultArgs(record)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, s.upsertResultSQL(), args...); err != nil {
		return fmt.Errorf("failed to write result %s: %w", record.ID, err)
	}
	return nil
}

// ListByJob returns a job's records oldest first
func (s *Store) ListByJob(ctx context.Context, jobID string) ([]*models.ResultRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, job_id, partner_id, product, enrichment, created_at
		FROM `+s.table("result_records")+` WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for job %s: %w", jobID, err)
	}
	defer rows.Close()

	out := make([]*models.ResultRecord, 0)
	for rows.Next() {
		var rec models.ResultRecord
		var product, enrichment []byte
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.PartnerID, &product, &enrichment, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(product, &rec.Product); err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(enrichment, &rec.Enrichment); err != nil {
			return nil, fmt.Errorf("failed to decode enrichment %s: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list results for job %s: %w", jobID, err)
	}
	return out, nil
}

// EnsurePartner returns the partner for a domain, creating it on first use
func (s *Store) EnsurePartner(ctx context.Context, domain string) (*models.Partner, error) {
	domain = common.NormalizeHost(domain)
	if domain == "" {
		return nil, fmt.Errorf("partner domain is required")
	}

	var p models.Partner
	err := s.pool.QueryRow(ctx, `INSERT INTO `+s.table("partners")+`
		(id, domain, company_name, website_url, country, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain
		RETURNING id, domain, company_name, website_url, country, status, created_at`,
		uuid.New().String(),
		domain,
		common.PartnerNameForDomain(domain),
		"https://"+domain,
		common.CountryForDomain(domain),
		models.PartnerStatusActive,
	).Scan(&p.ID, &p.Domain, &p.CompanyName, &p.WebsiteURL, &p.Country, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure partner %s: %w", domain, err)
	}
	return &p, nil
}
