package models

import "time"

// CandidateRecord is a raw product as extracted from a page, before validation
type CandidateRecord struct {
	Name        string      `json:"name"`
	Brand       string      `json:"brand,omitempty"`
	Price       interface{} `json:"price"` // number or string such as "1,299.00"
	Currency    string      `json:"currency"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Category    string      `json:"category,omitempty"`
	SKU         string      `json:"sku,omitempty"`
	PageURL     string      `json:"page_url,omitempty"` // Page the record was extracted from
}

// ValidatedRecord is a candidate that passed validation, with canonical fields
type ValidatedRecord struct {
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Description  string  `json:"description,omitempty"`
	URL          string  `json:"url"`
	ImageURL     string  `json:"image_url,omitempty"`
	Category     string  `json:"category"`
	SKU          string  `json:"sku,omitempty"`
	SourceDomain string  `json:"source_domain"`
	Market       string  `json:"market"`
}

// PartnerStatusActive is the status given to partners created by ingestion
const PartnerStatusActive = "active"

// Partner is the retailer a job's start URL belongs to
type Partner struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain" badgerhold:"index"`
	CompanyName string    `json:"company_name"`
	WebsiteURL  string    `json:"website_url"`
	Country     string    `json:"country"` // AE or TN
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
