// Package prometheus exposes goSession engine counters through client_golang.
//
// [NewCollector] adapts an engine (or any [Source]) to [prometheus.Collector].
// Counters are named gosession_*_total and latency histograms
// gosession_*_latency_seconds. [Handler] mounts the collector on a private
// registry; callers that already run a registry can register the collector
// themselves.
package prometheus
