// Package workers runs the background loops: outbox delivery and export
// token cleanup.
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Drainer delivers due outbox jobs and reports how many it processed.
type Drainer interface {
	Drain(ctx context.Context) (int, error)
}

// Sweeper removes expired export tokens.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// RunDeliveries drains the outbox every interval until ctx is done. A
// full batch is followed immediately by another drain.
func RunDeliveries(ctx context.Context, d Drainer, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := d.Drain(ctx)
			if err != nil {
				log.Error().Err(err).Msg("outbox drain failed")
				break
			}
			if n == 0 || ctx.Err() != nil {
				break
			}
			log.Debug().Int("jobs", n).Msg("outbox drained")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunSweeps removes expired export tokens every interval until ctx is done.
func RunSweeps(ctx context.Context, s Sweeper, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("export token sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
