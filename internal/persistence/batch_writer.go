package persistence

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// WriteOp is one parameterized statement queued for a batched transaction.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter coalesces insert-heavy traffic (trade legs, observations)
// into transactions, flushing on size or interval. It is the single
// writer to the database for tick-path data.
type BatchWriter struct {
	db          *sql.DB
	mu          sync.Mutex
	buffer      []WriteOp
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	log         zerolog.Logger

	writes  atomic.Uint64
	batches atomic.Uint64
	errors  atomic.Uint64

	lastMu        sync.Mutex
	lastBatchSize int
	lastFlush     time.Time
}

// WriterMetrics is a point-in-time view of batch writer activity.
type WriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	Pending       int       `json:"pending"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration, logger zerolog.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          db,
		buffer:      make([]WriteOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
		log:         logger,
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write queues one operation, flushing when the buffer is full.
func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(); err != nil {
			bw.log.Error().Err(err).Msg("size-triggered flush failed")
		}
	}
}

// WriteQuery queues a statement without building a WriteOp by hand.
func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.Write(WriteOp{Query: query, Args: args})
}

// Flush writes all buffered operations in one transaction.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ops)
}

func (bw *BatchWriter) executeBatch(ops []WriteOp) error {
	bw.writes.Add(uint64(len(ops)))
	bw.batches.Add(1)

	tx, err := bw.db.Begin()
	if err != nil {
		bw.errors.Add(1)
		bw.log.Error().Err(err).Msg("begin batch transaction")
		return err
	}

	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			tx.Rollback()
			bw.errors.Add(1)
			bw.log.Error().Err(err).Int("batch_size", len(ops)).Msg("batch statement failed, rolled back")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		bw.errors.Add(1)
		bw.log.Error().Err(err).Msg("commit batch")
		return err
	}

	bw.lastMu.Lock()
	bw.lastBatchSize = len(ops)
	bw.lastFlush = time.Now()
	bw.lastMu.Unlock()

	bw.log.Debug().Int("ops", len(ops)).Msg("flushed batch")
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				bw.log.Warn().Err(err).Msg("background flush")
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				bw.log.Warn().Err(err).Msg("final flush")
			}
			return
		}
	}
}

// Pending reports operations buffered but not yet flushed.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns current batch writer counters.
func (bw *BatchWriter) Metrics() WriterMetrics {
	bw.lastMu.Lock()
	size, at := bw.lastBatchSize, bw.lastFlush
	bw.lastMu.Unlock()
	return WriterMetrics{
		TotalWrites:   bw.writes.Load(),
		TotalBatches:  bw.batches.Load(),
		TotalErrors:   bw.errors.Load(),
		Pending:       bw.Pending(),
		LastBatchSize: size,
		LastFlushTime: at,
	}
}

// Close stops the flush loop after a final flush.
func (bw *BatchWriter) Close() error {
	close(bw.done)
	bw.wg.Wait()
	return nil
}
