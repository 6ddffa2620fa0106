package revocation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweepable is implemented by registries without native expiry.
type Sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, s Sweepable, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, interval)
			removed, err := s.Sweep(sweepCtx)
			cancel()
			if err != nil {
				logger.Warn("revocation sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("revocation sweep", zap.Int64("removed", removed))
			}
		}
	}
}
