// Package scheduler runs the decision cycle on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"marlin/internal/logger"
)

// Job is one cycle body. A returned error is logged; it never stops the
// schedule.
type Job func(ctx context.Context) error

// Interval runs job every period until the context is cancelled. With
// immediate set, the first run happens right away instead of after one
// full period.
func Interval(ctx context.Context, name string, period time.Duration, immediate bool, job Job) {
	run := func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			logger.Errorf("[scheduler] %s: %v", name, err)
		}
		logger.Debugf("[scheduler] %s took %s", name, time.Since(start).Round(time.Millisecond))
	}

	if immediate {
		run()
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[scheduler] %s stopped", name)
			return
		case <-ticker.C:
			run()
		}
	}
}
