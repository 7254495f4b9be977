package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/covera/internal/httpclient"
	"github.com/ternarybob/covera/internal/models"
)

// formatStatus formats a job status as markdown
func formatStatus(status *httpclient.JobStatus) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Job %s\n\n", status.JobID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", status.Status))
	sb.WriteString(fmt.Sprintf("**Active:** %t\n", status.Active))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n", status.UpdatedAt))

	if len(status.Progress) > 0 {
		keys := make([]string, 0, len(status.Progress))
		for k := range status.Progress {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\n#### Progress:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- **%s:** %v\n", k, status.Progress[k]))
		}
	}
	return sb.String()
}

// formatJobs formats a job list as markdown
func formatJobs(jobs []models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jobs (%d)\n\n", len(jobs)))

	if len(jobs) == 0 {
		sb.WriteString("No jobs found.\n")
		return sb.String()
	}

	for _, job := range jobs {
		sb.WriteString(fmt.Sprintf("- `%s` **%s** %s (created %s)", job.ID, job.Status, job.StartURL, job.CreatedAt.Format(time.RFC3339)))
		if job.Error != "" {
			sb.WriteString(fmt.Sprintf(" error: %s", job.Error))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatResults(jobID string, records []models.ResultRecord, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Results for %s (%d records)\n\n", jobID, len(records)))

	if len(records) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	sb.WriteString("| Product | Price | Category | Eligible | Profile |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("| %s | %.2f %s | %s | %t | %s |\n",
			strings.ReplaceAll(r.Product.Name, "|", "/"), r.Product.Price, r.Product.Currency,
			r.Product.Category, r.Enrichment.Eligible, r.Enrichment.RiskProfile))
	}
	return sb.String()
}

func formatCategories(categories []models.CategoryDefinition) string {
	var sb strings.Builder
	sb.WriteString("## Categories\n\n")
	for _, c := range categories {
		sb.WriteString(fmt.Sprintf("- `%s` %s\n", c.Key, c.DisplayName))
	}
	return sb.String()
}
