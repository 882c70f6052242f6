package events

import (
	"context"
	"time"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// SweepMetricsWriter is the part of *influxdb.Client MeteredSweeper uses.
type SweepMetricsWriter interface {
	WriteTokenSweep(deleted int64, at time.Time)
}

// MeteredSweeper records the outcome of every successful sweep.
type MeteredSweeper struct {
	Tokens  auth.Sweeper
	Metrics SweepMetricsWriter
}

// DeleteExpiredOrRevoked implements auth.Sweeper.
func (m MeteredSweeper) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	n, err := m.Tokens.DeleteExpiredOrRevoked(ctx)
	if err != nil {
		return n, err
	}
	if m.Metrics != nil {
		m.Metrics.WriteTokenSweep(n, time.Now())
	}
	return n, nil
}
