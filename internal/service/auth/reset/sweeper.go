package reset

import (
	"context"
	"time"
)

const DefaultSweepInterval = 10 * time.Minute

// Sweep purges expired tokens every interval until ctx is done
// Returned channel is closed when sweeper stopped
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	idleStopped := make(chan struct{})
	r.logger.Debug("Starting reset token sweeper", "interval", interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Reset token sweeper stopped by context")
				return

			case <-ticker.C:
				r.purge(ctx, r.now())
			}
		}
	}()

	return idleStopped
}

// Purge failure is only logged: tokens are checked for expiration on consume anyway
func (r *Registry) purge(ctx context.Context, now time.Time) {
	purged, err := r.repo.DeleteExpired(ctx, now)
	switch {
	case err != nil:
		r.logger.Warn("failed to purge expired reset tokens", "error", err)
	case purged > 0:
		r.logger.Debug("expired reset tokens purged", "count", purged)
	}
}
