package auth

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often stale refresh tokens are purged.
const DefaultSweepInterval = time.Hour

// Sweeper is the part of TokenRepository the sweeper needs.
type Sweeper interface {
	DeleteExpiredOrRevoked(ctx context.Context) (int64, error)
}

// RunSweeper deletes expired and revoked refresh tokens every interval until
// ctx is cancelled. It runs one sweep immediately.
func RunSweeper(ctx context.Context, tokens Sweeper, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sweep := func() {
		n, err := tokens.DeleteExpiredOrRevoked(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("refresh token sweep failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Debug("refresh tokens swept", "deleted", n)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
