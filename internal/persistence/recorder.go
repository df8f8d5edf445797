package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/internal/events"
	"github.com/MahyudeenShahid/trade-analysis/internal/monitor"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// Recorder is the asynchronous write path. The engine hands trade records
// over without blocking; a single drain goroutine feeds the batch writer
// and fans records out on the bus. A prune loop enforces observation
// retention.
type Recorder struct {
	queue     *Queue
	writer    *BatchWriter
	db        *db.Database
	bus       *events.Bus
	metrics   *monitor.Metrics
	log       zerolog.Logger
	retention time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RecorderConfig struct {
	DB            *db.Database
	Bus           *events.Bus
	Metrics       *monitor.Metrics
	Logger        zerolog.Logger
	QueueSize     int
	BatchSize     int
	BatchInterval time.Duration
	RetentionDays int
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	r := &Recorder{
		queue:   NewQueue(cfg.QueueSize),
		writer:  NewBatchWriter(cfg.DB.DB, cfg.BatchSize, cfg.BatchInterval, cfg.Logger),
		db:      cfg.DB,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	if cfg.RetentionDays > 0 {
		r.retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}
	return r
}

// Start launches the drain and prune loops. The drain loop runs until
// Close so queued records survive context cancellation; ctx only bounds
// the prune loop.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.queue.Drain(context.Background(), r.persist)
	}()

	if r.retention > 0 {
		r.wg.Add(1)
		go r.pruneLoop(ctx)
	}
}

// RecordTrade hands a record to the write path without blocking. A full
// queue drops the record (counted and logged); the state mutation that
// produced it is never rolled back.
func (r *Recorder) RecordTrade(rec state.TradeRecord) {
	if r.queue.TryEnqueue(rec) {
		return
	}
	if r.metrics != nil {
		r.metrics.CountQueueDrop()
	}
	r.log.Error().
		Str("window_id", rec.WindowID).
		Str("side", rec.Side).
		Msg("write queue full, trade record dropped")
}

// RecordObservation queues an observation row for the next batch.
func (r *Recorder) RecordObservation(o db.Observation) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	q, args := db.InsertObservationOp(o)
	r.writer.WriteQuery(q, args...)
}

func (r *Recorder) persist(rec state.TradeRecord) {
	q, args := db.InsertTradeOp(tradeRow(rec))
	r.writer.WriteQuery(q, args...)
	if r.bus != nil {
		r.bus.Publish(events.EventTradeRecord, rec)
	}
}

func tradeRow(rec state.TradeRecord) db.Trade {
	return db.Trade{
		ID:        rec.ID,
		TradeID:   rec.TradeID,
		WindowID:  rec.WindowID,
		Ticker:    rec.Ticker,
		Side:      rec.Side,
		Price:     rec.Price,
		Profit:    db.NullProfit(rec.Side, rec.Profit),
		WinReason: rec.WinReason,
		TS:        rec.TS,
	}
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)
	n, err := r.db.PruneObservations(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Msg("prune observations")
		return
	}
	if n > 0 {
		r.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("pruned observations")
	}
}

// Flush forces a synchronous write of everything buffered so far.
func (r *Recorder) Flush() error {
	return r.writer.Flush()
}

// QueueLen reports records waiting for the drain loop.
func (r *Recorder) QueueLen() int {
	return r.queue.Len()
}

// WriterMetrics exposes batch writer counters for the metrics endpoint.
func (r *Recorder) WriterMetrics() WriterMetrics {
	return r.writer.Metrics()
}

// Close drains the queue, stops the prune loop and flushes the writer.
func (r *Recorder) Close() error {
	r.queue.Close()
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.writer.Close()
}
