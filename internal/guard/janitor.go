package guard

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically sweeps g until ctx is cancelled. A non-positive
// interval disables it.
func Janitor(ctx context.Context, g *Guard, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Guard janitor stopped")
			return

		case <-ticker.C:
			removed := g.Sweep()
			if removed > 0 {
				logger.Debug("Swept guard entries",
					slog.Int("removed", removed),
					slog.Int("tracked", g.Len()))
			}
		}
	}
}
