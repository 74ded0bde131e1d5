package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	metrics Metrics
	err     error
	calls   int
}

func (p *fakeProbe) Sample(context.Context) (Metrics, error) {
	p.calls++
	return p.metrics, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitorClassification(t *testing.T) {
	config := Config{
		CacheTTL:       time.Nanosecond,
		MaxFailureRate: 0.25,
		MaxQueueDepth:  50,
	}

	tests := []struct {
		name       string
		metrics    Metrics
		probeErr   error
		healthy    bool
		wantReason string
	}{
		{
			name:    "nominal load is healthy",
			metrics: Metrics{FailureRate: 0.1, QueueDepth: 5},
			healthy: true,
		},
		{
			name:    "failure rate at threshold is still healthy",
			metrics: Metrics{FailureRate: 0.25, QueueDepth: 5},
			healthy: true,
		},
		{
			name:       "failure rate over threshold is degraded",
			metrics:    Metrics{FailureRate: 0.5, QueueDepth: 5},
			healthy:    false,
			wantReason: "worker error rate 50.0% > 25.0% threshold",
		},
		{
			name:    "queue depth at threshold is still healthy",
			metrics: Metrics{QueueDepth: 50},
			healthy: true,
		},
		{
			name:       "queue depth over threshold is degraded",
			metrics:    Metrics{QueueDepth: 51},
			healthy:    false,
			wantReason: "queue depth 51 > 50 threshold",
		},
		{
			name:       "probe failure is fail-safe degraded",
			probeErr:   errors.New("store unavailable"),
			healthy:    false,
			wantReason: "health probe failed: store unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &fakeProbe{metrics: tt.metrics, err: tt.probeErr}
			monitor := NewMonitor(probe, config, testLogger())

			snapshot := monitor.Check(context.Background())

			assert.Equal(t, tt.healthy, snapshot.Healthy)
			assert.Equal(t, tt.wantReason, snapshot.Reason)
			assert.False(t, snapshot.SampledAt.IsZero())
		})
	}
}

func TestMonitorZeroQueueDepthThresholdDisablesCheck(t *testing.T) {
	probe := &fakeProbe{metrics: Metrics{QueueDepth: 10000}}
	monitor := NewMonitor(probe, Config{CacheTTL: time.Nanosecond, MaxFailureRate: 0.25}, testLogger())

	snapshot := monitor.Check(context.Background())
	assert.True(t, snapshot.Healthy)
}

func TestMonitorCachesSnapshots(t *testing.T) {
	probe := &fakeProbe{metrics: Metrics{FailureRate: 0.9}}
	monitor := NewMonitor(probe, Config{CacheTTL: time.Hour, MaxFailureRate: 0.25}, testLogger())

	first := monitor.Check(context.Background())
	second := monitor.Check(context.Background())

	assert.Equal(t, 1, probe.calls, "second check should hit the cache")
	assert.Equal(t, first, second)
}

func TestStoreProbe(t *testing.T) {
	tests := []struct {
		name     string
		stats    domain.JobStats
		wantRate float64
	}{
		{
			name:     "failure rate over terminal jobs",
			stats:    domain.JobStats{Completed: 6, Failed: 2, Queued: 3},
			wantRate: 0.25,
		},
		{
			name:     "no terminal jobs yields zero rate",
			stats:    domain.JobStats{Queued: 3},
			wantRate: 0,
		},
		{
			name:     "all failures",
			stats:    domain.JobStats{Failed: 4},
			wantRate: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := NewStoreProbe(statsFunc(func(context.Context, time.Time) (domain.JobStats, error) {
				return tt.stats, nil
			}), 0)

			metrics, err := probe.Sample(context.Background())
			require.NoError(t, err)

			assert.InDelta(t, tt.wantRate, metrics.FailureRate, 1e-9)
			assert.Equal(t, tt.stats.Queued, metrics.QueueDepth)
		})
	}
}

func TestStoreProbePropagatesStatsError(t *testing.T) {
	probe := NewStoreProbe(statsFunc(func(context.Context, time.Time) (domain.JobStats, error) {
		return domain.JobStats{}, errors.New("query timeout")
	}), time.Minute)

	_, err := probe.Sample(context.Background())
	assert.Error(t, err)
}

type statsFunc func(ctx context.Context, since time.Time) (domain.JobStats, error)

func (f statsFunc) JobStats(ctx context.Context, since time.Time) (domain.JobStats, error) {
	return f(ctx, since)
}
