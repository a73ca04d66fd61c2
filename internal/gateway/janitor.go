package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartJanitor runs the periodic reap sweep until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Reap(now); n > 0 {
					log.Debug().Int("reaped", n).Int("sessions", r.Count()).Msg("janitor sweep")
				}
			}
		}
	}()
}
