package core

// scheduler.go runs background maintenance for export tasks.
//
// Tasks left PREPARED by a crashed or restarted process never reach a final
// state on their own. The sweeper moves those older than StaleAfter with no
// running worker to ERROR. It runs once on start and then every Interval,
// and stops when the context is cancelled. A failed sweep is logged and
// retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// StaleSweeper finalizes abandoned export tasks.
type StaleSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepConfig holds the sweeper schedule. Zero values use the defaults.
type SweepConfig struct {
	StaleAfter time.Duration // Age of an abandoned PREPARED task (default: 1h)
	Interval   time.Duration // How often to run (default: 10m)
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	return c
}

// StartExportSweeper blocks, sweeping stale export tasks until ctx is done.
func StartExportSweeper(ctx context.Context, sweeper StaleSweeper, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("export sweeper started",
		"stale_after", cfg.StaleAfter.String(),
		"interval", cfg.Interval.String(),
	)

	runSweep(ctx, sweeper, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("export sweeper stopped")
			return
		case <-ticker.C:
			runSweep(ctx, sweeper, cfg)
		}
	}
}

// runSweep performs one sweep.
func runSweep(ctx context.Context, sweeper StaleSweeper, cfg SweepConfig) {
	start := time.Now()
	n, err := sweeper.SweepStale(ctx, cfg.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("export sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("stale export tasks finalized",
			"tasks", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("export sweep completed", "duration_ms", time.Since(start).Milliseconds())
}
