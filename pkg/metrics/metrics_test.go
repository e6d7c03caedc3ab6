package metrics

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSink(t *testing.T) {
	sink := &NoopSink{}
	assert.NoError(t, sink.Send(context.Background(), &Metrics{}))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, Gauge(context.Background(), sink, ReplicationLagMetricName, 3))
	assert.Contains(t, buf.String(), ReplicationLagMetricName)
}

func TestGaugeAndCounter(t *testing.T) {
	sink := &NoopSink{}
	assert.NoError(t, Gauge(context.Background(), sink, ReplicationLagMetricName, 0))
	assert.NoError(t, Counter(context.Background(), sink, DumpBytesMetricName, 1024))
}
