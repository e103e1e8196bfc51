// Package observe provides the service's OpenTelemetry metrics and the
// Prometheus bridge that exposes them on /metrics.
//
// Tests should build a [Metrics] with [NewMetrics] and their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/oszuidwest/zwfm-voicetrigger"

// Decision outcomes.
const (
	OutcomeFired      = "fired"
	OutcomeSuppressed = "suppressed"
)

// Metrics holds all metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ChunksReceived counts sensor chunks. Use with attribute:
	//   attribute.Bool("malformed", ...)
	ChunksReceived metric.Int64Counter

	// Loudness records every published reading in percent of full scale.
	Loudness metric.Float64Histogram

	// Decisions counts trigger attempts. Use with attributes:
	//   attribute.String("source", ...), attribute.String("outcome", ...)
	Decisions metric.Int64Counter

	// Reconnects counts sensor reconnect attempts.
	Reconnects metric.Int64Counter

	// SensorStale is 1 while the sensor is in a confirmed stale state.
	SensorStale metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// loudnessBuckets spans the reading range in percent of full scale.
var loudnessBuckets = []float64{
	1, 2.5, 5, 10, 15, 20, 30, 50, 75, 100,
}

// NewMetrics creates all instruments using the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksReceived, err = m.Int64Counter("voicetrigger.sensor.chunks",
		metric.WithDescription("Total sensor chunks received."),
	); err != nil {
		return nil, err
	}
	if met.Loudness, err = m.Float64Histogram("voicetrigger.loudness",
		metric.WithDescription("Loudness readings in percent of full scale."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(loudnessBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("voicetrigger.trigger.decisions",
		metric.WithDescription("Trigger attempts by source and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voicetrigger.sensor.reconnects",
		metric.WithDescription("Total sensor reconnect attempts."),
	); err != nil {
		return nil, err
	}
	if met.SensorStale, err = m.Int64UpDownCounter("voicetrigger.sensor.stale",
		metric.WithDescription("Whether the sensor stopped delivering audio."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicetrigger.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordChunk records one received chunk and its reading.
func (m *Metrics) RecordChunk(ctx context.Context, reading float64, malformed bool) {
	m.ChunksReceived.Add(ctx, 1, metric.WithAttributes(attribute.Bool("malformed", malformed)))
	m.Loudness.Record(ctx, reading)
}

// RecordDecision records a trigger attempt.
func (m *Metrics) RecordDecision(ctx context.Context, source string, fired bool) {
	outcome := OutcomeSuppressed
	if fired {
		outcome = OutcomeFired
	}
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordReconnect records a sensor reconnect attempt.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	m.Reconnects.Add(ctx, 1)
}

// SetStale moves the stale gauge on a stale transition.
func (m *Metrics) SetStale(ctx context.Context, stale bool) {
	if stale {
		m.SensorStale.Add(ctx, 1)
		return
	}
	m.SensorStale.Add(ctx, -1)
}
