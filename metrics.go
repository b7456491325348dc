package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter.
type MetricID uint16

const (
	// MetricInitiateSuccess counts issued tokens.
	MetricInitiateSuccess MetricID = iota
	// MetricInitiateFailure counts Initiate calls rejected with ErrInvalidCredentials.
	MetricInitiateFailure
	// MetricVerifySuccess counts authenticated requests.
	MetricVerifySuccess
	// MetricVerifyUnauthorized counts requests without a bearer token.
	MetricVerifyUnauthorized
	// MetricVerifyMalformed counts structurally invalid tokens.
	MetricVerifyMalformed
	// MetricVerifySignatureInvalid counts tokens with a bad signature or foreign algorithm.
	MetricVerifySignatureInvalid
	// MetricVerifyExpired counts correctly signed tokens past expiry.
	MetricVerifyExpired
	// MetricVerifySubjectGone counts valid tokens whose user no longer exists.
	MetricVerifySubjectGone
	// MetricStoreUnavailable counts resolver errors on either path.
	MetricStoreUnavailable
	// MetricVerifyLatency is the histogram slot for Verify latency.
	MetricVerifyLatency
	// MetricInitiateLatency is the histogram slot for Initiate latency.
	MetricInitiateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricInitiateSuccess:        "initiate_success",
	MetricInitiateFailure:        "initiate_failure",
	MetricVerifySuccess:          "verify_success",
	MetricVerifyUnauthorized:     "verify_unauthorized",
	MetricVerifyMalformed:        "verify_malformed",
	MetricVerifySignatureInvalid: "verify_signature_invalid",
	MetricVerifyExpired:          "verify_expired",
	MetricVerifySubjectGone:      "verify_subject_gone",
	MetricStoreUnavailable:       "store_unavailable",
	MetricVerifyLatency:          "verify_latency",
	MetricInitiateLatency:        "initiate_latency",
}

// String returns the metric's snake_case name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// LatencyBucketBounds are the inclusive upper bounds of the latency histogram
// buckets. The final bucket is unbounded.
var LatencyBucketBounds = [histBucketCount - 1]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// LatencySums holds the total observed duration per histogram.
	LatencySums map[MetricID]time.Duration
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only latency ids have histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
	}
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:    map[MetricID]uint64{},
			Histograms:  map[MetricID][]uint64{},
			LatencySums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:    make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:  make(map[MetricID][]uint64, 2),
		LatencySums: make(map[MetricID]time.Duration, 2),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricVerifyLatency, MetricInitiateLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			s.LatencySums[id] = time.Duration(atomic.LoadUint64(&m.histograms[id].sumNanos))
		}
	}
	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricVerifyLatency || id == MetricInitiateLatency
}

func bucketIndex(d time.Duration) int {
	for i, bound := range LatencyBucketBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
