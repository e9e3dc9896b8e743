package reminders

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs sweeps on a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// DefaultInterval is the sweep cadence used when none is configured.
const DefaultInterval = 10 * time.Minute

// MaxInterval is the widest cadence that still visits every event inside
// each window: the width of the narrowest window.
func MaxInterval() time.Duration {
	var narrowest time.Duration
	for _, w := range Windows {
		if width := w.To - w.From; narrowest == 0 || width < narrowest {
			narrowest = width
		}
	}
	return narrowest
}

// NewScheduler creates a scheduler. A non-positive interval uses
// DefaultInterval; one above MaxInterval is lowered to it.
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if limit := MaxInterval(); interval > limit {
		logger.Warn("reminder interval wider than the narrowest window, lowering it",
			zap.Duration("configured", interval),
			zap.Duration("interval", limit),
		)
		interval = limit
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.sweeper.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled reminder sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopping")
			return nil
		case <-ticker.C:
		}
	}
}
