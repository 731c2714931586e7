package memory

import (
	"context"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// RunJanitor calls s.Cleanup every interval until ctx is done.
func RunJanitor(ctx context.Context, s Store, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup(ctx)
			if err != nil {
				logger.Warn("memory cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired memory entries removed", "count", n)
			}
		}
	}
}
