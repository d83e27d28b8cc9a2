package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultVerifyInterval is how often the deletion watcher re-checks that the
// account behind the session still exists.
const DefaultVerifyInterval = 30 * time.Second

// StartDeletionWatcher polls VerifyUserExists until the context is
// cancelled, so an out-of-band account deletion is noticed promptly even if
// the realtime channel misses the event. Connectivity errors are logged and
// the next tick retries; a detected deletion stops the watcher (the wipe and
// redirect have already happened).
func (s *Service) StartDeletionWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultVerifyInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tickCtx, cancel := context.WithTimeout(ctx, interval)
			err := s.VerifyUserExists(tickCtx)
			cancel()
			if errors.Is(err, ErrAccountDeleted) {
				return
			}
			if err != nil {
				s.logger.Debug().Err(err).Msg("deletion watcher check failed")
			}
		}
	}()
}
