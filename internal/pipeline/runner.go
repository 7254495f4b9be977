package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/metrics"
	"github.com/ternarybob/covera/internal/models"
)

const batchProgressEvery = 5

// ProgressReporter receives partial progress updates. Returning ErrStopped stops the run.
type ProgressReporter func(update map[string]interface{}) error

// Input describes one pipeline run
type Input struct {
	JobID              string
	StartURL           string
	SelectedCategories []string
	Progress           ProgressReporter
	ShouldStop         func() bool
}

// RunnerOptions are the tunables of a run
type RunnerOptions struct {
	MaxWorkers     int
	BatchSize      int
	QueueSize      int
	FlushPoll      time.Duration
	RequestTimeout time.Duration
}

// NewRunnerOptions reads the pipeline and crawler sections of the configuration
func NewRunnerOptions(config *common.Config) RunnerOptions {
	return RunnerOptions{
		MaxWorkers:     config.Pipeline.MaxWorkers,
		BatchSize:      config.Pipeline.BatchSize,
		QueueSize:      config.Pipeline.QueueSize,
		FlushPoll:      config.Pipeline.FlushPoll,
		RequestTimeout: config.Crawler.RequestTimeout,
	}
}

// Runner executes discovery, bounded concurrent fetch and the per-record flow
type Runner struct {
	discoverer interfaces.Discoverer
	fetcher    interfaces.Fetcher
	enricher   *Enricher
	store      interfaces.ResultStore
	categories *CategoryTable
	options    RunnerOptions
	logger     arbor.ILogger
}

func NewRunner(
	discoverer interfaces.Discoverer,
	fetcher interfaces.Fetcher,
	enricher *Enricher,
	store interfaces.ResultStore,
	categories *CategoryTable,
	options RunnerOptions,
	logger arbor.ILogger,
) *Runner {
	if options.MaxWorkers <= 0 {
		options.MaxWorkers = 5
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = 30 * time.Second
	}
	if categories == nil {
		categories = DefaultCategoryTable()
	}
	return &Runner{
		discoverer: discoverer,
		fetcher:    fetcher,
		enricher:   enricher,
		store:      store,
		categories: categories,
		options:    options,
		logger:     logger,
	}
}

// Categories returns the category filter table used by the runner
func (r *Runner) Categories() *CategoryTable {
	return r.categories
}

// run holds the state of one Run call
type run struct {
	*Runner
	in      Input
	logger  arbor.ILogger
	started time.Time
	stats   *Stats
	seen    *SeenSet
	writer  *Writer
	partner *models.Partner

	urlsTotal int
	urlsDone  atomic.Int64
}

// Run executes one pipeline run. A stopped run returns its partial summary with ErrStopped.
func (r *Runner) Run(ctx context.Context, in Input) (*models.RunSummary, error) {
	x := &run{
		Runner:  r,
		in:      in,
		logger:  r.logger.WithCorrelationId(in.JobID),
		started: time.Now(),
		stats:   &Stats{},
		seen:    NewSeenSet(),
	}
	return x.execute(ctx)
}

func (x *run) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return x.in.ShouldStop != nil && x.in.ShouldStop()
}

// report sends a progress update. Only ErrStopped is returned; other reporter errors are logged.
func (x *run) report(phase string, fields map[string]interface{}) error {
	if x.in.Progress == nil {
		return nil
	}
	update := map[string]interface{}{
		"phase":           phase,
		"elapsed_seconds": time.Since(x.started).Seconds(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		update[k] = v
	}
	if err := x.in.Progress(update); err != nil {
		if errors.Is(err, ErrStopped) {
			return ErrStopped
		}
		x.logger.Warn().Err(err).Str("phase", phase).Msg("Progress report failed")
	}
	return nil
}

func (x *run) counters() map[string]interface{} {
	fields := x.stats.Snapshot().ToMap()
	fields["urls_total"] = x.urlsTotal
	fields["urls_done"] = int(x.urlsDone.Load())
	return fields
}

func (x *run) execute(ctx context.Context) (*models.RunSummary, error) {
	if err := x.report("starting", map[string]interface{}{
		"start_url":           x.in.StartURL,
		"selected_categories": x.in.SelectedCategories,
	}); err != nil || x.stopped(ctx) {
		return x.finishStopped()
	}

	domain := common.DomainOf(x.in.StartURL)
	if domain == "" {
		return nil, fmt.Errorf("start url %q has no host", x.in.StartURL)
	}

	if err := x.report("setup", map[string]interface{}{
		"domain":      domain,
		"max_workers": x.options.MaxWorkers,
	}); err != nil {
		return x.finishStopped()
	}

	categoryFields := map[string]interface{}{"message": "Processing all categories (no filter)"}
	if len(x.in.SelectedCategories) > 0 {
		for _, key := range x.in.SelectedCategories {
			if !x.categories.Has(key) {
				x.logger.Warn().Str("category", key).Msg("Unknown category key ignored")
			}
		}
		categoryFields = map[string]interface{}{
			"message":             fmt.Sprintf("Filtering %d categories", len(x.in.SelectedCategories)),
			"selected_categories": x.in.SelectedCategories,
			"category_names":      x.categories.DisplayNames(x.in.SelectedCategories),
		}
	}
	if err := x.report("categories", categoryFields); err != nil {
		return x.finishStopped()
	}

	partner, err := x.store.EnsurePartner(ctx, domain)
	if err != nil {
		x.reportError(err)
		return nil, fmt.Errorf("failed to get or create partner for %s: %w", domain, err)
	}
	x.partner = partner
	if err := x.report("partner", map[string]interface{}{
		"partner_id":   partner.ID,
		"partner_name": partner.CompanyName,
		"country":      partner.Country,
	}); err != nil || x.stopped(ctx) {
		return x.finishStopped()
	}

	urls, err := x.discover(ctx)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			return x.finishStopped()
		}
		x.reportError(err)
		return nil, err
	}

	x.writer = NewWriter(ctx, x.store, x.logger,
		WithBatchSize(x.options.BatchSize),
		WithQueueSize(x.options.QueueSize),
		WithFlushPoll(x.options.FlushPoll),
	)

	scrapeErr := x.scrape(ctx, urls)
	writerStats := x.writer.Close()
	x.stats.Update(func(c *models.RunCounters) {
		c.Persisted = writerStats.Persisted
		c.Lost = writerStats.Lost
	})

	if errors.Is(scrapeErr, ErrStopped) || x.stopped(ctx) {
		return x.finishStopped()
	}
	if scrapeErr != nil {
		x.reportError(scrapeErr)
		return nil, scrapeErr
	}

	summary := x.summary(models.RunOutcomeCompleted)
	fields := x.counters()
	fields["message"] = "Pipeline completed successfully"
	fields["partner_id"] = summary.PartnerID
	fields["partner_name"] = summary.PartnerName
	if err := x.report("completed", fields); err != nil {
		return x.finishStopped()
	}

	x.logger.Info().
		Int("validated", summary.Validated).
		Int("eligible", summary.Eligible).
		Int("persisted", summary.Persisted).
		Int("lost", summary.Lost).
		Str("elapsed", time.Since(x.started).Round(time.Millisecond).String()).
		Msg("Pipeline completed")

	return summary, nil
}

// discover calls the discoverer once and keeps URLs sharing the start host's top level label
func (x *run) discover(ctx context.Context) ([]string, error) {
	if err := x.report("discovery", map[string]interface{}{"message": "Discovering URLs..."}); err != nil {
		return nil, err
	}
	if x.stopped(ctx) {
		return nil, ErrStopped
	}

	discoverStart := time.Now()
	dctx, cancel := context.WithTimeout(ctx, x.options.RequestTimeout)
	all, err := x.discoverer.Discover(dctx, x.in.StartURL)
	cancel()

	if x.stopped(ctx) {
		return nil, ErrStopped
	}
	if err != nil {
		return nil, fmt.Errorf("url discovery failed: %w", err)
	}

	if err := x.report("discovery_complete", map[string]interface{}{
		"urls_found":     len(all),
		"discovery_time": time.Since(discoverStart).Seconds(),
	}); err != nil {
		return nil, err
	}

	filtered := make([]string, 0, len(all))
	for _, u := range all {
		if common.SameTopLevel(u, x.in.StartURL) {
			filtered = append(filtered, u)
		}
	}
	x.urlsTotal = len(filtered)

	sample := filtered
	if len(sample) > 3 {
		sample = sample[:3]
	}
	if err := x.report("urls_filtered", map[string]interface{}{
		"message":              fmt.Sprintf("Filtered to %d URLs from same domain", len(filtered)),
		"urls_total":           len(filtered),
		"urls_removed":         len(all) - len(filtered),
		"filtered_urls_sample": sample,
	}); err != nil {
		return nil, err
	}

	x.logger.Info().Int("discovered", len(all)).Int("kept", len(filtered)).Msg("URL discovery complete")
	return filtered, nil
}

// scrape fans the URLs out to a bounded worker group
func (x *run) scrape(ctx context.Context, urls []string) error {
	if err := x.report("scraping", map[string]interface{}{
		"message":    fmt.Sprintf("Starting to scrape %d URLs", len(urls)),
		"urls_total": len(urls),
		"workers":    x.options.MaxWorkers,
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.options.MaxWorkers)

	submitted := 0
	for i, pageURL := range urls {
		if x.stopped(gctx) {
			break
		}
		if err := x.report("url_submitted", map[string]interface{}{
			"url_index":  i + 1,
			"urls_total": len(urls),
			"url":        truncate(pageURL, 100),
		}); err != nil {
			_ = g.Wait()
			return err
		}

		index, target := i+1, pageURL
		g.Go(func() error {
			return x.processURL(gctx, index, target)
		})
		submitted++
	}

	if !x.stopped(gctx) {
		if err := x.report("all_urls_submitted", map[string]interface{}{
			"message": fmt.Sprintf("All %d URLs submitted for processing", submitted),
		}); err != nil {
			_ = g.Wait()
			return err
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if x.stopped(ctx) {
		return ErrStopped
	}
	return nil
}

// processURL fetches one page and runs every candidate through the record flow.
// Fetch failures are counted, never returned.
func (x *run) processURL(ctx context.Context, index int, pageURL string) error {
	if x.stopped(ctx) {
		return ErrStopped
	}

	fetchStart := time.Now()
	fctx, cancel := context.WithTimeout(ctx, x.options.RequestTimeout)
	candidates, err := x.fetcher.Fetch(fctx, pageURL)
	cancel()
	metrics.ObserveFetchDuration(time.Since(fetchStart), err)

	if err != nil {
		if x.stopped(ctx) {
			return ErrStopped
		}
		x.stats.Update(func(c *models.RunCounters) { c.FetchFailed++ })
		x.logger.Warn().Err(err).Str("url", pageURL).Msg("Fetch failed")
		if rerr := x.report("fetch_error", map[string]interface{}{
			"url":        pageURL,
			"url_index":  index,
			"error":      err.Error(),
			"error_type": fmt.Sprintf("%T", err),
		}); rerr != nil {
			return rerr
		}
		return x.urlDone()
	}
	x.stats.Update(func(c *models.RunCounters) { c.PagesFetched++ })

	for i := range candidates {
		if candidates[i].PageURL == "" {
			candidates[i].PageURL = pageURL
		}
		if err := x.processRecord(ctx, pageURL, candidates[i]); err != nil {
			return err
		}
	}

	return x.urlDone()
}

func (x *run) urlDone() error {
	done := x.urlsDone.Add(1)
	if done%batchProgressEvery != 0 {
		return nil
	}
	fields := x.counters()
	fields["completed_urls"] = int(done)
	return x.report("batch_progress", fields)
}

// processRecord runs one candidate through filter, validation, dedup, enrichment and enqueue
func (x *run) processRecord(ctx context.Context, pageURL string, candidate models.CandidateRecord) error {
	x.stats.Update(func(c *models.RunCounters) { c.Discovered++ })

	if x.stopped(ctx) {
		return ErrStopped
	}
	x.stats.Update(func(c *models.RunCounters) { c.Fetched++ })

	if !x.categories.Matches(candidate.Name, candidate.Category, x.in.SelectedCategories) {
		x.stats.Update(func(c *models.RunCounters) { c.FilteredOut++ })
		metrics.IncreaseRecordsMetric(metrics.OutcomeFilteredOut)
		return nil
	}

	record, err := Validate(candidate)
	if err != nil {
		x.stats.Update(func(c *models.RunCounters) { c.Invalid++ })
		metrics.IncreaseRecordsMetric(metrics.OutcomeInvalid)
		x.logger.Debug().Err(err).Str("url", pageURL).Msg("Candidate rejected")
		return nil
	}
	x.stats.Update(func(c *models.RunCounters) { c.Validated++ })

	if !x.seen.Add(record.URL) {
		x.stats.Update(func(c *models.RunCounters) { c.Duplicate++ })
		metrics.IncreaseRecordsMetric(metrics.OutcomeDuplicate)
		return nil
	}

	enrichment, err := x.enricher.Enrich(ctx, *record)
	if err != nil {
		return err
	}

	if x.stopped(ctx) {
		return ErrStopped
	}

	result := &models.ResultRecord{
		ID:         common.NewRecordID(),
		JobID:      x.in.JobID,
		PartnerID:  x.partner.ID,
		Product:    *record,
		Enrichment: enrichment,
		CreatedAt:  time.Now(),
	}
	if err := x.writer.Enqueue(ctx, result); err != nil {
		if x.stopped(ctx) {
			return ErrStopped
		}
		return fmt.Errorf("failed to enqueue result: %w", err)
	}

	x.stats.Update(func(c *models.RunCounters) {
		c.Enriched++
		if enrichment.Failed {
			c.EnrichmentFailed++
		}
		if enrichment.Eligible {
			c.Eligible++
		} else {
			c.Ineligible++
		}
	})
	switch {
	case enrichment.Failed:
		metrics.IncreaseRecordsMetric(metrics.OutcomeFailed)
	case enrichment.Eligible:
		metrics.IncreaseRecordsMetric(metrics.OutcomeEligible)
	default:
		metrics.IncreaseRecordsMetric(metrics.OutcomeIneligible)
	}

	fields := x.counters()
	fields["current_url"] = pageURL
	fields["product_name"] = truncate(record.Name, 50)
	fields["eligible_status"] = enrichment.Eligible
	fields["price"] = record.Price
	fields["currency"] = record.Currency
	if !enrichment.Eligible {
		fields["reason"] = truncate(enrichment.Reason, 100)
	}
	return x.report("record", fields)
}

func (x *run) summary(outcome models.RunOutcome) *models.RunSummary {
	summary := &models.RunSummary{
		RunCounters:    x.stats.Snapshot(),
		Outcome:        outcome,
		URLsTotal:      x.urlsTotal,
		URLsDone:       int(x.urlsDone.Load()),
		ElapsedSeconds: time.Since(x.started).Seconds(),
	}
	if x.partner != nil {
		summary.PartnerID = x.partner.ID
		summary.PartnerName = x.partner.CompanyName
	}
	if x.writer != nil {
		summary.Flushes = x.writer.Stats().Flushes
	}
	return summary
}

// finishStopped drains the writer if one was started and reports the stop
func (x *run) finishStopped() (*models.RunSummary, error) {
	if x.writer != nil {
		ws := x.writer.Close()
		x.stats.Update(func(c *models.RunCounters) {
			c.Persisted = ws.Persisted
			c.Lost = ws.Lost
		})
	}
	summary := x.summary(models.RunOutcomeStopped)

	fields := x.counters()
	fields["message"] = "Pipeline stopped by user"
	if x.in.Progress != nil {
		_ = x.in.Progress(mergeFields(map[string]interface{}{
			"phase":           "stopped",
			"elapsed_seconds": summary.ElapsedSeconds,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		}, fields))
	}

	x.logger.Info().
		Int("validated", summary.Validated).
		Int("persisted", summary.Persisted).
		Msg("Pipeline stopped")
	return summary, ErrStopped
}

func (x *run) reportError(err error) {
	if x.in.Progress == nil {
		return
	}
	_ = x.in.Progress(map[string]interface{}{
		"phase":      "error",
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func mergeFields(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
