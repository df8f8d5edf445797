// Package monitor collects runtime counters and latency distributions for
// the metrics endpoint.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks engine and API activity. All methods are safe for
// concurrent use.
type Metrics struct {
	// Latency histograms
	TickLatency    *LatencyHistogram
	RequestLatency *LatencyHistogram

	ticksProcessed  atomic.Uint64
	buyDecisions    atomic.Uint64
	sellDecisions   atomic.Uint64
	holdDecisions   atomic.Uint64
	tradesRecorded  atomic.Uint64
	guardViolations atomic.Uint64
	queueDrops      atomic.Uint64
	apiRequests     atomic.Uint64
	apiErrors       atomic.Uint64
	wsClients       atomic.Int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		TickLatency:    NewLatencyHistogram(1000),
		RequestLatency: NewLatencyHistogram(1000),
		startTime:      time.Now(),
	}
}

// ObserveTick records one processed tick and its end-to-end latency.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.ticksProcessed.Add(1)
	m.TickLatency.RecordDuration(d)
}

// CountDecision tallies a tick's decided action.
func (m *Metrics) CountDecision(action string) {
	switch action {
	case "BUY":
		m.buyDecisions.Add(1)
	case "SELL":
		m.sellDecisions.Add(1)
	default:
		m.holdDecisions.Add(1)
	}
}

// CountTrades adds produced trade legs.
func (m *Metrics) CountTrades(n int) {
	m.tradesRecorded.Add(uint64(n))
}

// CountGuardViolation tallies a discarded decision (BUY while open, SELL
// while flat).
func (m *Metrics) CountGuardViolation() {
	m.guardViolations.Add(1)
}

// CountQueueDrop tallies a trade record lost to a full write queue.
func (m *Metrics) CountQueueDrop() {
	m.queueDrops.Add(1)
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	m.apiRequests.Add(1)
	if status >= 500 {
		m.apiErrors.Add(1)
	}
	m.RequestLatency.RecordDuration(d)
}

// AddWSClient moves the connected-client gauge by delta.
func (m *Metrics) AddWSClient(delta int64) {
	m.wsClients.Add(delta)
}

// MetricsSnapshot is the point-in-time view served by the metrics
// endpoint.
type MetricsSnapshot struct {
	TickLatency     LatencyStats `json:"tick_latency"`
	RequestLatency  LatencyStats `json:"request_latency"`
	TicksProcessed  uint64       `json:"ticks_processed"`
	BuyDecisions    uint64       `json:"buy_decisions"`
	SellDecisions   uint64       `json:"sell_decisions"`
	HoldDecisions   uint64       `json:"hold_decisions"`
	TradesRecorded  uint64       `json:"trades_recorded"`
	GuardViolations uint64       `json:"guard_violations"`
	QueueDrops      uint64       `json:"queue_drops"`
	APIRequests     uint64       `json:"api_requests"`
	APIErrors       uint64       `json:"api_errors"`
	WSClients       int64        `json:"ws_clients"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	UptimeSeconds   float64      `json:"uptime_seconds"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		TickLatency:     m.TickLatency.Stats(),
		RequestLatency:  m.RequestLatency.Stats(),
		TicksProcessed:  m.ticksProcessed.Load(),
		BuyDecisions:    m.buyDecisions.Load(),
		SellDecisions:   m.sellDecisions.Load(),
		HoldDecisions:   m.holdDecisions.Load(),
		TradesRecorded:  m.tradesRecorded.Load(),
		GuardViolations: m.guardViolations.Load(),
		QueueDrops:      m.queueDrops.Load(),
		APIRequests:     m.apiRequests.Load(),
		APIErrors:       m.apiErrors.Load(),
		WSClients:       m.wsClients.Load(),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		UptimeSeconds:   time.Since(m.startTime).Seconds(),
		Timestamp:       time.Now(),
	}
}

// LatencyHistogram tracks latency samples in a sliding window, computing
// stats lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts a duration to ms and records it.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputed only when
// samples changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	p95 := int(float64(n) * 0.95)
	p99 := int(float64(n) * 0.99)
	if p95 >= n {
		p95 = n - 1
	}
	if p99 >= n {
		p99 = n - 1
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[p95],
		P99:   sorted[p99],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// Timer measures one operation's duration into a histogram.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer starts a timer that records to the given histogram on Stop.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
