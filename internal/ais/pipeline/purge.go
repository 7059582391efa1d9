package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// CooldownPurger deletes cooldown entries whose last alert predates cutoff.
// *db.DB satisfies this.
type CooldownPurger interface {
	PurgeCooldowns(cutoff time.Time) (int64, error)
}

// RunCooldownPurge deletes cooldown entries older than retention, once at
// startup and then every interval. It blocks until ctx is cancelled.
func RunCooldownPurge(ctx context.Context, clock timeutil.Clock, store CooldownPurger, interval, retention time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	purge := func(now time.Time) {
		removed, err := store.PurgeCooldowns(now.Add(-retention))
		if err != nil {
			opsf("cooldown purge: %v", err)
			return
		}
		if removed > 0 {
			diagf("cooldown purge removed %d stale entries", removed)
		}
	}

	purge(clock.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			purge(now)
		}
	}
}
