package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sl "billing_auth/internal/lib/logger"
)

type Cleaner interface {
	SweepExpiredUnverified(ctx context.Context) (int64, error)
}

// Sweeper periodically removes unverified accounts whose verification token
// has expired. Each pass is one store operation, so running passes
// concurrently or alongside a verification is safe.
type Sweeper struct {
	log      *slog.Logger
	cleaner  Cleaner
	interval time.Duration
}

func New(log *slog.Logger, cleaner Cleaner, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		cleaner:  cleaner,
		interval: interval,
	}
}

// RunOnce performs a single sweep pass. Nothing to remove is a success, not
// an error.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	const op = "sweeper.RunOnce"

	removed, err := s.cleaner.SweepExpiredUnverified(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if removed > 0 {
		s.log.Info("removed expired unverified accounts", slog.Int64("count", removed))
	} else {
		s.log.Debug("no expired unverified accounts")
	}

	return removed, nil
}

// Run sweeps at the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", sl.Err(err))
			}
		}
	}
}
