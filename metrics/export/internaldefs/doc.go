// Package internaldefs holds the counter definitions, help strings and bucket
// layout shared by the Prometheus and OpenTelemetry exporters.
package internaldefs
