package monitor

import (
	"context"
	"time"

	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/threshold"
)

// Run ticks every monitor at fps until ctx is cancelled. dt is taken from
// the wall clock so trigger durations do not depend on the real frame rate.
func Run(ctx context.Context, fps int, monitors ...*Monitor) {
	if fps <= 0 {
		fps = 30
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	names := make([]string, len(monitors))
	for i, m := range monitors {
		names[i] = m.Name()
	}
	log.Info("tick loop started", "fps", fps, "interval", interval, "monitors", names)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info("tick loop stopped", "reason", ctx.Err())
			return

		case now := <-ticker.C:
			dt := threshold.Since(last, now)
			if dt == 0 {
				dt = threshold.FrameDT(float64(fps))
			}
			last = now
			for _, m := range monitors {
				m.Tick(ctx, dt)
			}
		}
	}
}
