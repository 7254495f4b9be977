package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

// JobStarter creates and launches an ingestion job
type JobStarter interface {
	StartJob(req models.StartJobRequest) (*models.Job, error)
}

// entry is a registered recurring ingestion
type entry struct {
	name       string
	schedule   string
	startURL   string
	categories []string
	cronID     cron.EntryID
	lastRun    *time.Time
	lastJobID  string
	lastError  string
}

// EntryStatus is a read-only view of a scheduled entry
type EntryStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	StartURL  string     `json:"start_url"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastJobID string     `json:"last_job_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Service fires configured ingestion entries on their cron schedules
type Service struct {
	starter JobStarter
	cron    *cron.Cron
	logger  arbor.ILogger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

func NewService(starter JobStarter, logger arbor.ILogger) *Service {
	return &Service{
		starter: starter,
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// LoadConfig registers every configured entry
func (s *Service) LoadConfig(config common.SchedulerConfig) error {
	for _, e := range config.Entries {
		if err := s.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a recurring ingestion. Names must be unique.
func (s *Service) Register(e common.ScheduledEntry) error {
	if e.Name == "" {
		return fmt.Errorf("scheduled entry name is required")
	}
	if e.StartURL == "" {
		return fmt.Errorf("scheduled entry %s has no start_url", e.Name)
	}
	if err := common.ValidateJobSchedule(e.Schedule); err != nil {
		return fmt.Errorf("scheduled entry %s: %w", e.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.Name]; exists {
		return fmt.Errorf("scheduled entry %s already registered", e.Name)
	}

	name := e.Name
	cronID, err := s.cron.AddFunc(e.Schedule, func() {
		s.fire(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add scheduled entry %s: %w", name, err)
	}

	s.entries[name] = &entry{
		name:       name,
		schedule:   e.Schedule,
		startURL:   e.StartURL,
		categories: append([]string(nil), e.Categories...),
		cronID:     cronID,
	}

	s.logger.Info().
		Str("entry", name).
		Str("schedule", e.Schedule).
		Str("start_url", e.StartURL).
		Msg("Scheduled entry registered")
	return nil
}

// Remove drops a registered entry
func (s *Service) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("scheduled entry %s not found", name)
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, name)
	return nil
}

// TriggerNow fires an entry immediately, outside its schedule
func (s *Service) TriggerNow(name string) (string, error) {
	s.mu.Lock()
	_, exists := s.entries[name]
	s.mu.Unlock()
	if !exists {
		return "", fmt.Errorf("scheduled entry %s not found", name)
	}
	return s.fire(name)
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("entries", len(s.entries)).Msg("Scheduler started")
}

// Stop halts the cron loop. Jobs already started keep running under the supervisor.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Entries returns the registered entries sorted by name
func (s *Service) Entries() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		status := EntryStatus{
			Name:      e.name,
			Schedule:  e.schedule,
			StartURL:  e.startURL,
			LastRun:   e.lastRun,
			LastJobID: e.lastJobID,
			LastError: e.lastError,
		}
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) fire(name string) (string, error) {
	s.mu.Lock()
	e, exists := s.entries[name]
	if !exists {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduled entry %s not found", name)
	}
	req := models.StartJobRequest{
		StartURL:           e.startURL,
		SelectedCategories: append([]string(nil), e.categories...),
	}
	s.mu.Unlock()

	job, err := s.starter.StartJob(req)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, exists = s.entries[name]; exists {
		e.lastRun = &now
		if err != nil {
			e.lastError = err.Error()
		} else {
			e.lastError = ""
			e.lastJobID = job.ID
		}
	}

	if err != nil {
		s.logger.Error().Err(err).Str("entry", name).Msg("Scheduled ingestion failed to start")
		return "", err
	}
	s.logger.Info().Str("entry", name).Str("job_id", job.ID).Msg("Scheduled ingestion started")
	return job.ID, nil
}
