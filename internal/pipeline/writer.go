package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/metrics"
	"github.com/ternarybob/covera/internal/models"
)

// WriterStats are the cumulative totals of a writer
type WriterStats struct {
	Flushes   int `json:"flushes"`
	Persisted int `json:"persisted"`
	Lost      int `json:"lost"`
}

// Writer drains a bounded queue of result records into a store in batches.
// A single consumer goroutine owns the batch. If the consumer dies the writer
// closes itself and counts everything it still held as lost.
type Writer struct {
	store     interfaces.ResultStore
	logger    arbor.ILogger
	batchSize int
	flushPoll time.Duration
	ctx       context.Context

	queue  chan *models.ResultRecord
	batch  []*models.ResultRecord
	done   chan struct{}
	failed chan struct{}
	once   sync.Once

	// closed guards sends on queue against close(queue)
	mu     sync.RWMutex
	closed bool

	statsMu sync.Mutex
	stats   WriterStats
}

type WriterOption func(*Writer)

func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithQueueSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan *models.ResultRecord, n)
		}
	}
}

func WithFlushPoll(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.flushPoll = d
		}
	}
}

// NewWriter starts the consumer. Store calls keep ctx's values but not its
// cancellation, so records already queued are persisted after a stop.
func NewWriter(ctx context.Context, store interfaces.ResultStore, logger arbor.ILogger, opts ...WriterOption) *Writer {
	w := &Writer{
		store:     store,
		logger:    logger,
		batchSize: 100,
		flushPoll: 500 * time.Millisecond,
		ctx:       context.WithoutCancel(ctx),
		queue:     make(chan *models.ResultRecord, 1000),
		done:      make(chan struct{}),
		failed:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	common.SafeGo(logger, "result-writer", w.consume, w.abandon)
	return w
}

// Enqueue blocks while the queue is full. It returns ErrWriterClosed after Close.
func (w *Writer) Enqueue(ctx context.Context, record *models.ResultRecord) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.queue <- record:
		return nil
	default:
	}

	w.logger.Debug().Int("queue_size", cap(w.queue)).Msg("Writer queue full, applying backpressure")
	select {
	case w.queue <- record:
		return nil
	case <-w.failed:
		return ErrWriterClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue result %s: %w", record.ID, ctx.Err())
	}
}

// Close stops accepting records, drains the queue, performs the final flush and
// returns once the consumer has exited. Safe to call more than once.
func (w *Writer) Close() WriterStats {
	w.shutdown()
	<-w.done
	return w.Stats()
}

func (w *Writer) shutdown() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
}

// abandon runs on the consumer goroutine after a panic. Blocked producers are
// released, and the in-flight batch plus the queued records are counted lost.
func (w *Writer) abandon(interface{}) {
	close(w.failed)
	w.shutdown()

	lost := len(w.batch)
	w.batch = nil
	for range w.queue {
		lost++
	}

	w.statsMu.Lock()
	w.stats.Lost += lost
	w.statsMu.Unlock()

	metrics.RecordLostRecords(lost)
	w.logger.Error().Int("lost", lost).Msg("Result writer stopped, queued records lost")
	close(w.done)
}

// Stats returns the current totals
func (w *Writer) Stats() WriterStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Writer) consume() {
	w.batch = make([]*models.ResultRecord, 0, w.batchSize)
	idle := time.NewTimer(w.flushPoll)
	defer idle.Stop()

	for {
		select {
		case record, ok := <-w.queue:
			if !ok {
				if len(w.batch) > 0 {
					w.batch = w.flush(w.batch)
				}
				s := w.Stats()
				w.logger.Debug().
					Int("flushes", s.Flushes).
					Int("persisted", s.Persisted).
					Int("lost", s.Lost).
					Msg("Result writer drained")
				close(w.done)
				return
			}
			w.batch = append(w.batch, record)
			if len(w.batch) >= w.batchSize {
				w.batch = w.flush(w.batch)
			}
			idle.Reset(w.flushPoll)

		case <-idle.C:
			if len(w.batch) > 0 {
				w.batch = w.flush(w.batch)
			}
			idle.Reset(w.flushPoll)
		}
	}
}

// flush writes one batch, falling back to per-record inserts, and returns a fresh batch
func (w *Writer) flush(batch []*models.ResultRecord) []*models.ResultRecord {
	persisted, lost := len(batch), 0

	if err := w.store.InsertBatch(w.ctx, batch); err != nil {
		w.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("Batch insert failed, retrying records individually")

		persisted = 0
		for _, record := range batch {
			if err := w.store.Insert(w.ctx, record); err != nil {
				lost++
				w.logger.Error().Err(err).Str("record_id", record.ID).Str("job_id", record.JobID).Msg("Result record lost")
				continue
			}
			persisted++
		}
	}

	w.statsMu.Lock()
	w.stats.Flushes++
	w.stats.Persisted += persisted
	w.stats.Lost += lost
	w.statsMu.Unlock()

	metrics.RecordWriterFlush(lost)
	w.logger.Debug().Int("persisted", persisted).Int("lost", lost).Msg("Flushed result batch")

	return make([]*models.ResultRecord, 0, w.batchSize)
}
