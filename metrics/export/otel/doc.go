// Package otel publishes engine counters and the login latency histogram as
// OpenTelemetry observable instruments on a caller-supplied Meter.
package otel
