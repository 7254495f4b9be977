package models

import "time"

// ResultRecord is the unit persisted to the result store
type ResultRecord struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id" badgerhold:"index"`
	PartnerID  string          `json:"partner_id"`
	Product    ValidatedRecord `json:"product"`
	Enrichment Enrichment      `json:"enrichment"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CategoryDefinition is one entry of the category filter table
type CategoryDefinition struct {
	Key         string   `json:"key" yaml:"key"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
}

// StartJobRequest is the body of POST /jobs
type StartJobRequest struct {
	StartURL           string   `json:"start_url" validate:"required,url,startswith=http"`
	SelectedCategories []string `json:"selected_categories,omitempty" validate:"omitempty,dive,required"`
}
