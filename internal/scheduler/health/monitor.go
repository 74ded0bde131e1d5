package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// Metrics are the raw load indicators a probe samples
type Metrics struct {
	// FailureRate is the fraction of terminal jobs in the trailing window
	// that failed, 0..1
	FailureRate float64
	// QueueDepth is the number of jobs currently queued
	QueueDepth int
}

// Probe samples load indicators. Implementations must be side-effect-free;
// the monitor decides how often to call them.
type Probe interface {
	Sample(ctx context.Context) (Metrics, error)
}

// Config holds classification thresholds and the snapshot cache TTL
type Config struct {
	CacheTTL       time.Duration
	MaxFailureRate float64
	MaxQueueDepth  int
}

// Monitor classifies the system as healthy or degraded. Snapshots are
// cached for CacheTTL so the hot admission path never samples the probe
// more than once per interval. A probe failure classifies as unhealthy:
// a monitoring outage must not bypass admission control.
type Monitor struct {
	probe  Probe
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	cached    domain.HealthSnapshot
	sampledAt time.Time
}

// NewMonitor creates a health monitor over the given probe
func NewMonitor(probe Probe, config Config, logger *slog.Logger) *Monitor {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Second
	}
	return &Monitor{
		probe:  probe,
		config: config,
		logger: logger,
	}
}

// Check returns the current health classification, reusing a cached
// snapshot while it is fresh.
func (m *Monitor) Check(ctx context.Context) domain.HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.sampledAt.IsZero() && now.Sub(m.sampledAt) < m.config.CacheTTL {
		return m.cached
	}

	snapshot := m.classify(ctx, now)

	m.cached = snapshot
	m.sampledAt = now

	if !snapshot.Healthy {
		m.logger.Warn("System classified as degraded",
			slog.String("reason", snapshot.Reason),
		)
	}

	return snapshot
}

func (m *Monitor) classify(ctx context.Context, now time.Time) domain.HealthSnapshot {
	metrics, err := m.probe.Sample(ctx)
	if err != nil {
		return domain.HealthSnapshot{
			Healthy:   false,
			Reason:    fmt.Sprintf("health probe failed: %s", err),
			SampledAt: now,
		}
	}

	if metrics.FailureRate > m.config.MaxFailureRate {
		return domain.HealthSnapshot{
			Healthy: false,
			Reason: fmt.Sprintf("worker error rate %.1f%% > %.1f%% threshold",
				metrics.FailureRate*100, m.config.MaxFailureRate*100),
			SampledAt: now,
		}
	}

	if m.config.MaxQueueDepth > 0 && metrics.QueueDepth > m.config.MaxQueueDepth {
		return domain.HealthSnapshot{
			Healthy: false,
			Reason: fmt.Sprintf("queue depth %d > %d threshold",
				metrics.QueueDepth, m.config.MaxQueueDepth),
			SampledAt: now,
		}
	}

	return domain.HealthSnapshot{Healthy: true, SampledAt: now}
}
