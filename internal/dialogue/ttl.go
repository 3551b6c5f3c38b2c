package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/orientador/internal/store"
)

const defaultSweepInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically removes stored
// conversations not updated within ttl. A non-positive ttl disables it.
func StartTTLWorker(ctx context.Context, repo store.Repository, ttl, interval time.Duration) {
	if ttl <= 0 {
		slog.Info("TTL worker disabled")
		return
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpired(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, repo store.Repository, ttl time.Duration) int64 {
	// Backends retry busy errors themselves.
	deleted, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during cleanup", "error", err)
			return 0
		}
		slog.Error("TTL worker failed to clean up expired sessions", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up expired sessions", "count", deleted)
	}
	return deleted
}
