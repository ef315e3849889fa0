package memory

import (
	"context"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// StartCleanup starts the scheduled expiry sweep. The job runs at the
// configured interval and is single-flight: a tick that finds a previous
// sweep still running reschedules instead of overlapping it. Calling
// StartCleanup on a running store is a no-op.
func (s *Store) StartCleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cleanupInterval),
		gocron.NewTask(func() {
			s.sweepExpired(context.Background())
		}),
		gocron.WithName("memory-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	s.scheduler = scheduler

	s.logger.WithField("interval", s.cleanupInterval).Info("memory cleanup scheduler started")
	return nil
}

// StopCleanup stops the sweep scheduler. Safe to call when not running.
func (s *Store) StopCleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	return err
}

// sweepExpired deletes every memory past its expiry.
func (s *Store) sweepExpired(ctx context.Context) {
	runID := uuid.New().String()
	log := s.logger.WithField("run_id", runID)

	removed, err := s.store.DeleteExpiredMemories(ctx, s.clock())
	if err != nil {
		log.WithError(err).Error("expiry sweep failed")
		return
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("expiry sweep completed")
	}
}

// SweepExpiredNow runs one expiry sweep immediately, outside the
// scheduler. It returns the number of deleted memories.
func (s *Store) SweepExpiredNow(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredMemories(ctx, s.clock())
}
