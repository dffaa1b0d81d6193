package tasks

import (
	"context"
	"time"

	"link-shortener/pkg/logging"
	"link-shortener/pkg/storage"
)

// Sweeper periodically deactivates expired links. It only flips is_active;
// nothing is ever deleted, and already-inactive links are left alone.
type Sweeper struct {
	links    storage.LinkStorage
	interval time.Duration
	logger   *logging.Logger
	stopCh   chan struct{}
}

func NewSweeper(links storage.LinkStorage, interval time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		links:    links,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background ticker. Call Stop() to end it.
// Pass interval=0 to disable periodic sweeping.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background ticker.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// RunOnce performs a single sweep and reports how many links it deactivated.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	count, err := s.links.SweepExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "expiry sweep failed", "error", err)
		return 0
	}
	s.logger.LogSweep(count)
	return count
}
