package persistence

import (
	"context"

	"github.com/MahyudeenShahid/trade-analysis/internal/state"
)

// Queue buffers trade records between the engine's critical section and
// the write path. Enqueueing never blocks; a full queue drops the record
// and reports it so the caller can count the loss.
type Queue struct {
	ch chan state.TradeRecord
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan state.TradeRecord, size)}
}

// TryEnqueue adds a record without blocking. Reports false when the queue
// is full and the record was dropped.
func (q *Queue) TryEnqueue(rec state.TradeRecord) bool {
	select {
	case q.ch <- rec:
		return true
	default:
		return false
	}
}

func (q *Queue) Chan() <-chan state.TradeRecord {
	return q.ch
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Close() {
	close(q.ch)
}

// Drain consumes records with a handler until the queue closes or the
// context is canceled.
func (q *Queue) Drain(ctx context.Context, handler func(state.TradeRecord)) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-q.ch:
			if !ok {
				return
			}
			handler(rec)
		}
	}
}
