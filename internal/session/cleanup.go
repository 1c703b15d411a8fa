package session

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanupWorker runs a background goroutine that periodically sweeps
// for sessions inactive beyond the TTL and evicts them together with their
// on-disk artifacts. It stops when ctx is cancelled.
func StartCleanupWorker(ctx context.Context, mgr *Manager, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session cleanup worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-ttl)
				if _, err := mgr.CleanupInactive(ctx, cutoff); err != nil {
					slog.Error("Session cleanup sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("Session cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
