package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	covera = "covera"

	recordsTotal       = "records_total"
	jobsFinishedTotal  = "jobs_finished_total"
	writerFlushesTotal = "writer_flushes_total"
	recordsLostTotal   = "records_lost_total"
	activeJobs         = "active_jobs"
	fetchDuration      = "fetch_duration_seconds"

	// Labels
	outcomeLabel = "outcome"
	statusLabel  = "status"
	resultLabel  = "result"
)

// Record outcomes
const (
	OutcomeFilteredOut = "filtered_out"
	OutcomeInvalid     = "invalid"
	OutcomeDuplicate   = "duplicate"
	OutcomeEligible    = "eligible"
	OutcomeIneligible  = "ineligible"
	OutcomeFailed      = "enrichment_failed"
)

/**
* Metrics definition
**/
var recordsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: covera,
		Name:      recordsTotal,
		Help:      "number of candidate records processed, by outcome",
	},
	[]string{outcomeLabel},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: covera,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var writerFlushesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: covera,
		Name:      writerFlushesTotal,
		Help:      "number of batch flushes performed by persistence writers",
	},
)

var recordsLostTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: covera,
		Name:      recordsLostTotal,
		Help:      "number of result records that could not be persisted",
	},
)

var activeJobsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: covera,
		Name:      activeJobs,
		Help:      "number of jobs with a live pipeline goroutine",
	},
)

var fetchDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: covera,
		Name:      fetchDuration,
		Help:      "latency of page fetch calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{resultLabel},
)

func IncreaseRecordsMetric(outcome string) {
	recordsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func RecordWriterFlush(lost int) {
	writerFlushesTotalMetric.Inc()
	if lost > 0 {
		recordsLostTotalMetric.Add(float64(lost))
	}
}

// RecordLostRecords counts records dropped outside a flush
func RecordLostRecords(lost int) {
	if lost > 0 {
		recordsLostTotalMetric.Add(float64(lost))
	}
}

func UpdateActiveJobsMetric(count int) {
	activeJobsMetric.Set(float64(count))
}

func ObserveFetchDuration(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchDurationMetric.With(prometheus.Labels{resultLabel: result}).Observe(elapsed.Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(recordsTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(writerFlushesTotalMetric)
	prometheus.MustRegister(recordsLostTotalMetric)
	prometheus.MustRegister(activeJobsMetric)
	prometheus.MustRegister(fetchDurationMetric)
}
