package rss

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Scheduler triggers refresh cycles on a fixed cadence. The per-feed
// intervals decide which feeds each cycle actually fetches, so the
// tick just has to be frequent enough to notice a feed coming due.
type Scheduler struct {
	refresher *Refresher
	interval  time.Duration
}

func NewScheduler(refresher *Refresher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled, kicking off a refresh cycle
// immediately and then on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.refresher.TryRefreshAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Feed scheduler shutting down")
			return
		case <-ticker.C:
			s.refresher.TryRefreshAll(ctx)
		}
	}
}
