package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Manager.Sweep on a fixed interval until its context is
// cancelled. onSweep, when set, observes each successful pass (metrics).
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	onSweep  func(SweepResult)
}

// sweepTimeout bounds the store calls of a single sweep pass.
const sweepTimeout = time.Minute

// NewSweeper returns a Sweeper over the manager. interval <= 0 defaults to one hour.
func NewSweeper(manager *Manager, interval time.Duration, logger *slog.Logger, onSweep func(SweepResult)) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{manager: manager, interval: interval, logger: logger, onSweep: onSweep}
}

// Run sweeps once immediately and then on every tick. Returns when ctx is
// cancelled. Sweep failures are logged, never fatal.
func (w *Sweeper) Run(ctx context.Context) {
	w.sweep(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	res, err := w.manager.Sweep(ctx)
	if err != nil {
		w.logger.Error("session sweep failed", "error", err)
		return
	}
	if res.RevokedDeleted > 0 || res.StaleDeleted > 0 {
		w.logger.Info("session sweep completed",
			"revoked_deleted", res.RevokedDeleted,
			"stale_deleted", res.StaleDeleted)
	}
	if w.onSweep != nil {
		w.onSweep(res)
	}
}
