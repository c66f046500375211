package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks exchange traffic and lifecycle outcomes for one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Latency histograms
	RequestLatency *LatencyHistogram
	OrderLatency   *LatencyHistogram

	// Counters
	requests      uint64
	requestErrors uint64
	retries       uint64
	rejections    uint64
	fatals        uint64

	mu      sync.Mutex
	perPath map[string]uint64
	started time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestLatency: NewLatencyHistogram(1000),
		OrderLatency:   NewLatencyHistogram(200),
		perPath:        make(map[string]uint64),
		started:        time.Now(),
	}
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
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
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

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
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

// RecordRequest records one exchange round trip.
func (m *Metrics) RecordRequest(path string, d time.Duration, err error) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.requests, 1)
	if err != nil {
		atomic.AddUint64(&m.requestErrors, 1)
	}
	m.RequestLatency.RecordDuration(d)

	m.mu.Lock()
	m.perPath[path]++
	m.mu.Unlock()
}

// IncrementRetries counts one scheduled retry.
func (m *Metrics) IncrementRetries() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.retries, 1)
}

// IncrementRejections counts an order refused by the exchange.
func (m *Metrics) IncrementRejections() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rejections, 1)
}

// IncrementFatals counts an operation abandoned on a fatal condition.
func (m *Metrics) IncrementFatals() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fatals, 1)
}

// ObserveOrder records the wall time of a whole lifecycle operation.
func (m *Metrics) ObserveOrder(d time.Duration) {
	if m == nil {
		return
	}
	m.OrderLatency.RecordDuration(d)
}

// MetricsSnapshot is a point-in-time view of Metrics.
type MetricsSnapshot struct {
	RequestLatency LatencyStats      `json:"request_latency"`
	OrderLatency   LatencyStats      `json:"order_latency"`
	Requests       uint64            `json:"requests"`
	RequestErrors  uint64            `json:"request_errors"`
	Retries        uint64            `json:"retries"`
	Rejections     uint64            `json:"rejections"`
	Fatals         uint64            `json:"fatals"`
	PerPath        map[string]uint64 `json:"per_path"`
	GoroutineCount int               `json:"goroutine_count"`
	HeapAlloc      uint64            `json:"heap_alloc_bytes"`
	Uptime         time.Duration     `json:"uptime"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Snapshot returns a point-in-time metrics snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Timestamp: time.Now()}
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	perPath := make(map[string]uint64, len(m.perPath))
	for k, v := range m.perPath {
		perPath[k] = v
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		RequestLatency: m.RequestLatency.Stats(),
		OrderLatency:   m.OrderLatency.Stats(),
		Requests:       atomic.LoadUint64(&m.requests),
		RequestErrors:  atomic.LoadUint64(&m.requestErrors),
		Retries:        atomic.LoadUint64(&m.retries),
		Rejections:     atomic.LoadUint64(&m.rejections),
		Fatals:         atomic.LoadUint64(&m.fatals),
		PerPath:        perPath,
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		Uptime:         time.Since(m.started),
		Timestamp:      time.Now(),
	}
}
