// Package metrics contains a sink interface for migration metrics.
// It provides a default NoopSink and a LogSink for convenience.
package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Metric types.
const (
	UNKNOWN byte = iota
	COUNTER
	GAUGE
)

const (
	SinkTimeout                 = 1 * time.Second
	DumpBytesMetricName         = "dump_bytes_copied"
	ReplicationLagMetricName    = "replication_lag_seconds"
	MigrationDurationMetricName = "migration_duration_seconds"
)

// Metrics are a collection of MetricValues.
type Metrics struct {
	Values []MetricValue
}

type MetricValue struct {
	Name  string
	Value float64
	Type  byte
}

// Sink sends metrics to an external destination.
type Sink interface {
	// Send sends metrics to the sink. It must respect the context timeout, if any.
	Send(ctx context.Context, metrics *Metrics) error
}

// NoopSink is the default sink which does nothing.
type NoopSink struct{}

func (s *NoopSink) Send(_ context.Context, _ *Metrics) error {
	return nil
}

var _ Sink = &NoopSink{}

// logSink logs metrics.
type logSink struct {
	logger *slog.Logger
}

func (l *logSink) Send(_ context.Context, m *Metrics) error {
	for _, v := range m.Values {
		switch v.Type {
		case COUNTER:
			l.logger.Info("metric", "name", v.Name, "type", "counter", "value", v.Value)
		case GAUGE:
			l.logger.Info("metric", "name", v.Name, "type", "gauge", "value", v.Value)
		default:
			l.logger.Error("Received invalid metric type", "type", v.Type, "name", v.Name, "value", v.Value)
		}
	}
	return nil
}

var _ Sink = &logSink{}

func NewLogSink(logger *slog.Logger) *logSink {
	return &logSink{
		logger: logger,
	}
}

// Gauge is a convenience helper to send a single gauge value.
func Gauge(ctx context.Context, sink Sink, name string, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, SinkTimeout)
	defer cancel()
	return sink.Send(ctx, &Metrics{Values: []MetricValue{{Name: name, Value: value, Type: GAUGE}}})
}

// Counter is a convenience helper to send a single counter value.
func Counter(ctx context.Context, sink Sink, name string, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, SinkTimeout)
	defer cancel()
	return sink.Send(ctx, &Metrics{Values: []MetricValue{{Name: name, Value: value, Type: COUNTER}}})
}
