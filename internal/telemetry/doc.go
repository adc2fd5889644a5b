// Package telemetry provides OpenTelemetry tracing and local query metrics.
//
// Tracing is a no-op unless an OTLP endpoint is configured. Query metrics
// are kept in memory only and reported through the stats surfaces; nothing
// leaves the machine unless the operator points tracing at a collector.
package telemetry
