// Package otel mirrors goSession engine counters into OpenTelemetry instruments.
//
// [NewExporter] registers one counter for initiate results and one for verify
// results, each split by an "outcome" attribute, plus per-"operation" latency
// bucket, count and sum series. A single callback reads the engine snapshot
// on each collection cycle. Callers own the MeterProvider.
package otel
