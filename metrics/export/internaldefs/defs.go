package internaldefs

import (
	"github.com/MrEthical07/goSession"
)

// Namespace prefixes every exported series.
const Namespace = "gosession"

// CounterDef describes one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef describes one exported latency histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricInitiateSuccess, Name: "gosession_initiate_success_total", Help: "Sessions issued."},
	{ID: goSession.MetricInitiateFailure, Name: "gosession_initiate_failure_total", Help: "Initiate calls rejected with invalid credentials."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Requests authenticated by a session token."},
	{ID: goSession.MetricVerifyUnauthorized, Name: "gosession_verify_unauthorized_total", Help: "Requests without a bearer token."},
	{ID: goSession.MetricVerifyMalformed, Name: "gosession_verify_malformed_total", Help: "Structurally invalid tokens."},
	{ID: goSession.MetricVerifySignatureInvalid, Name: "gosession_verify_signature_invalid_total", Help: "Tokens with an invalid signature or algorithm."},
	{ID: goSession.MetricVerifyExpired, Name: "gosession_verify_expired_total", Help: "Correctly signed tokens past expiry."},
	{ID: goSession.MetricVerifySubjectGone, Name: "gosession_verify_subject_gone_total", Help: "Valid tokens whose user no longer exists."},
	{ID: goSession.MetricStoreUnavailable, Name: "gosession_store_unavailable_total", Help: "User store errors during initiate or verify."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_seconds", Help: "Verify latency in seconds."},
	{ID: goSession.MetricInitiateLatency, Name: "gosession_initiate_latency_seconds", Help: "Initiate latency in seconds, including password comparison."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(goSession.LatencyBucketBounds) + 1

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(goSession.LatencyBucketBounds))
	for i, d := range goSession.LatencyBucketBounds {
		out[i] = d.Seconds()
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
