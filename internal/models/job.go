package models

import "time"

// JobStatus is the lifecycle state of an ingestion job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStopping  JobStatus = "stopping"
	JobStatusStopped   JobStatus = "stopped"
)

// IsTerminal reports whether no further transition can leave this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

// Job is one ingestion run tracked by the registry
type Job struct {
	ID                 string                 `json:"id"`
	StartURL           string                 `json:"start_url"`
	SelectedCategories []string               `json:"selected_categories"`
	Status             JobStatus              `json:"status"`
	Progress           map[string]interface{} `json:"progress"`
	CreatedAt          time.Time              `json:"created_at"`
	StartedAt          *time.Time             `json:"started_at,omitempty"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt          time.Time              `json:"updated_at"`
	Error              string                 `json:"error,omitempty"`
	Result             *RunSummary            `json:"result,omitempty"`
	StopRequested      bool                   `json:"stop_requested"`
}

// Clone returns a deep copy safe to hand out of the registry
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}

	clone := *j
	clone.SelectedCategories = append([]string(nil), j.SelectedCategories...)
	clone.Progress = cloneMap(j.Progress)
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		clone.Result = &r
	}
	return &clone
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return cloneMap(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}

// RunOutcome is how a pipeline run ended
type RunOutcome string

const (
	RunOutcomeCompleted RunOutcome = "completed"
	RunOutcomeStopped   RunOutcome = "stopped"
)

// RunCounters are the per-run record counters
type RunCounters struct {
	Discovered       int `json:"discovered"`
	Fetched          int `json:"fetched"`
	PagesFetched     int `json:"pages_fetched"`
	FetchFailed      int `json:"fetch_failed"`
	FilteredOut      int `json:"filtered_out"`
	Validated        int `json:"validated"`
	Invalid          int `json:"invalid"`
	Duplicate        int `json:"duplicate"`
	Enriched         int `json:"enriched"`
	Eligible         int `json:"eligible"`
	Ineligible       int `json:"ineligible"`
	EnrichmentFailed int `json:"enrichment_failed"`
	Persisted        int `json:"persisted"`
	Lost             int `json:"lost"`
}

// ToMap flattens the counters into progress keys
func (c RunCounters) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"discovered":        c.Discovered,
		"fetched":           c.Fetched,
		"pages_fetched":     c.PagesFetched,
		"fetch_failed":      c.FetchFailed,
		"filtered_out":      c.FilteredOut,
		"validated":         c.Validated,
		"invalid":           c.Invalid,
		"duplicate":         c.Duplicate,
		"enriched":          c.Enriched,
		"eligible":          c.Eligible,
		"ineligible":        c.Ineligible,
		"enrichment_failed": c.EnrichmentFailed,
		"persisted":         c.Persisted,
		"lost":              c.Lost,
	}
}

// RunSummary is the result a finished pipeline run hands back to the supervisor
type RunSummary struct {
	RunCounters
	Outcome        RunOutcome `json:"outcome"`
	PartnerID      string     `json:"partner_id,omitempty"`
	PartnerName    string     `json:"partner_name,omitempty"`
	URLsTotal      int        `json:"urls_total"`
	URLsDone       int        `json:"urls_done"`
	Flushes        int        `json:"flushes"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
}
