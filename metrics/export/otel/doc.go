// Package otel publishes magicgate counters and latency histograms through an
// OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads a
// snapshot on each collection cycle.
//
// The package never owns the MeterProvider; callers supply the Meter.
package otel
