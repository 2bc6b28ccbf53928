package engine

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reclaims seats held by pending reservations whose
// hold deadline has passed. It runs independently of any request: buyers
// who abandon checkout never call cancel, so the sweeper is what bounds
// how long an unpaid claim can block a seat.
//
// The interval bounds the staleness of the reclaim: a seat is freed at
// most one interval after its hold deadline. The configuration layer
// requires the interval to be shorter than the hold duration.
type Sweeper struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(engine *Engine, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Sweep
// errors are logged, never propagated: one bad run must not stop the
// reclaim loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiration sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.engine.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}

	if expired > 0 {
		s.logger.Info("released expired reservations", "count", expired)
	}
}
