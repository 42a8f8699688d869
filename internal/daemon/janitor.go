package daemon

import (
	"context"
	"log/slog"
	"time"

	"whereabouts/internal/database"
)

const resolvedTransferRetention = 24 * time.Hour

// JanitorTask periodically removes resolved transfer rows past their
// retention, freeing the one-transfer-per-person slot for the record books.
func JanitorTask(db *database.Database, logger *slog.Logger) Func {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Daemon shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-resolvedTransferRetention)
				deleted, err := db.DeleteResolvedTransfersBefore(ctx, cutoff)
				if err != nil {
					logger.Error("Failed to prune resolved transfers", "daemon", name, "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("Pruned resolved transfers", "daemon", name, "count", deleted)
				}
			}
		}
	}
}
