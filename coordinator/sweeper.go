package coordinator

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// SweeperConfig controls the background maintenance loop.
type SweeperConfig struct {
	// Interval between sweeps. Defaults to one minute.
	Interval time.Duration

	// RetentionDays bounds how long terminal sessions are kept. Zero disables
	// the cleanup half of the sweep; expiry still runs.
	RetentionDays int

	Log *slog.Logger
}

// Sweeper periodically expires stale sessions and deletes terminal sessions
// past the retention horizon. Expiry is also enforced inline on every
// mutating coordinator call; the sweeper just keeps abandoned sessions from
// lingering in a live state between calls.
type Sweeper struct {
	coordinator *Coordinator
	cfg         SweeperConfig
	log         *slog.Logger

	isRunning atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
}

// NewSweeper creates a sweeper over the given coordinator.
func NewSweeper(coordinator *Coordinator, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	log := cfg.Log
	if log == nil {
		log = coordinator.log
	}
	return &Sweeper{
		coordinator: coordinator,
		cfg:         cfg,
		log:         log,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// RunInBackground starts the sweep loop. Calling it twice is a no-op.
func (s *Sweeper) RunInBackground() {
	if s.isRunning.Swap(true) {
		return
	}

	go func() {
		defer close(s.stopped)

		s.log.Info("Starting session sweeper",
			"interval", s.cfg.Interval.String(),
			"retentionDays", s.cfg.RetentionDays)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Shutdown stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Shutdown() {
	if !s.isRunning.Swap(false) {
		return
	}
	close(s.done)
	<-s.stopped
	s.log.Info("Session sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx := context.Background()

	if _, err := s.coordinator.ExpireStaleSessions(ctx); err != nil {
		s.log.Error("Sweep failed to expire stale sessions", "err", err)
	}

	if s.cfg.RetentionDays > 0 {
		if _, err := s.coordinator.CleanupOldSessions(ctx, s.cfg.RetentionDays); err != nil {
			s.log.Error("Sweep failed to clean up old sessions", "err", err)
		}
	}
}
