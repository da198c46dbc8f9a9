package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultSweepInterval = 5 * time.Second

// Sweeper periodically evicts abandoned sessions from a Registry
type Sweeper struct {
	reg   *Registry
	every time.Duration
	clock clockwork.Clock
	log   *slog.Logger
}

func NewSweeper(reg *Registry, every time.Duration, clock clockwork.Clock, log *slog.Logger) *Sweeper {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{reg: reg, every: every, clock: clock, log: log}
}

// Run sweeps every period until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.every)
	defer t.Stop()

	s.log.Info("sweeper.started", "every", s.every, "staleAfter", s.reg.staleAfter)
	for {
		select {
		case <-t.Chan():
			if n := s.reg.Sweep(); n > 0 {
				state, count := s.reg.Occupancy()
				s.log.Debug("sweeper.tick", "evicted", n, "state", state, "count", count)
			}
		case <-ctx.Done():
			s.log.Info("sweeper.stopped")
			return nil
		}
	}
}
