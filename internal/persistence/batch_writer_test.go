package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

func newTestDB(t *testing.T) (*db.Database, func()) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	return database, func() { _ = database.Close() }
}

func countRows(t *testing.T, database *db.Database, table string) int {
	t.Helper()
	var n int
	if err := database.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func queueObservation(bw *BatchWriter, id string) {
	q, args := db.InsertObservationOp(db.Observation{
		ID:       id,
		WindowID: "w-1",
		Ticker:   "AAPL",
		Price:    100,
		Trend:    "UP",
		TS:       time.Now().UTC(),
	})
	bw.WriteQuery(q, args...)
}

func TestBatchWriterFlush(t *testing.T) {
	database, cleanup := newTestDB(t)
	defer cleanup()

	bw := NewBatchWriter(database.DB, 10, time.Hour, zerolog.Nop())
	defer bw.Close()

	for _, id := range []string{"o1", "o2", "o3"} {
		queueObservation(bw, id)
	}
	if got := bw.Pending(); got != 3 {
		t.Fatalf("Pending=%d, expected 3", got)
	}

	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := countRows(t, database, "observations"); got != 3 {
		t.Fatalf("rows=%d, expected 3", got)
	}

	m := bw.Metrics()
	if m.TotalWrites != 3 || m.TotalBatches != 1 || m.Pending != 0 || m.LastBatchSize != 3 {
		t.Fatalf("metrics=%+v, expected one batch of 3 and an empty buffer", m)
	}
}

// Hitting maxSize flushes inline without waiting for the interval.
func TestBatchWriterSizeTrigger(t *testing.T) {
	database, cleanup := newTestDB(t)
	defer cleanup()

	bw := NewBatchWriter(database.DB, 2, time.Hour, zerolog.Nop())
	defer bw.Close()

	queueObservation(bw, "o1")
	queueObservation(bw, "o2")

	if got := bw.Pending(); got != 0 {
		t.Fatalf("Pending=%d, expected the full buffer flushed", got)
	}
	if got := countRows(t, database, "observations"); got != 2 {
		t.Fatalf("rows=%d, expected 2", got)
	}
}

// One bad statement rolls the whole batch back.
func TestBatchWriterRollback(t *testing.T) {
	database, cleanup := newTestDB(t)
	defer cleanup()

	bw := NewBatchWriter(database.DB, 10, time.Hour, zerolog.Nop())
	defer bw.Close()

	queueObservation(bw, "o1")
	bw.WriteQuery("INSERT INTO missing_table (id) VALUES (?)", "x")

	if err := bw.Flush(); err == nil {
		t.Fatalf("Flush err=nil, expected statement failure")
	}
	if got := countRows(t, database, "observations"); got != 0 {
		t.Fatalf("rows=%d, expected the good row rolled back too", got)
	}
	if m := bw.Metrics(); m.TotalErrors != 1 {
		t.Fatalf("TotalErrors=%d, expected 1", m.TotalErrors)
	}
}
