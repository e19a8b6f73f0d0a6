package state

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically removes
// expired state. Sweep failures are logged and never crash the process.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("state sweeper started", "interval", interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					slog.Error("state sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("state sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
