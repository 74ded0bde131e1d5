package health

import (
	"context"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// StatsSource provides aggregate job counts; the Job Store implements it
type StatsSource interface {
	JobStats(ctx context.Context, since time.Time) (domain.JobStats, error)
}

// StoreProbe derives load metrics from the Job Store: worker failure rate
// over a trailing window and current queue depth.
type StoreProbe struct {
	stats  StatsSource
	window time.Duration
}

// NewStoreProbe creates a probe over the given stats source
func NewStoreProbe(stats StatsSource, window time.Duration) *StoreProbe {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &StoreProbe{
		stats:  stats,
		window: window,
	}
}

// Sample computes metrics from job counts. With no terminal jobs in the
// window the failure rate is zero, not undefined.
func (p *StoreProbe) Sample(ctx context.Context) (Metrics, error) {
	stats, err := p.stats.JobStats(ctx, time.Now().Add(-p.window))
	if err != nil {
		return Metrics{}, err
	}

	var rate float64
	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		rate = float64(stats.Failed) / float64(terminal)
	}

	return Metrics{
		FailureRate: rate,
		QueueDepth:  stats.Queued,
	}, nil
}
