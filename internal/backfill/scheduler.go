package backfill

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs backfills of a fixed set of entities periodically.
type Scheduler struct {
	orchestrator *Orchestrator
	entities     []string
	batchSize    int
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that backfills entities at the given
// interval.
func NewScheduler(o *Orchestrator, entities []string, batchSize int, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		entities:     entities,
		batchSize:    batchSize,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic backfills. It schedules one pass immediately, then
// one on each tick. ctx bounds the scheduler's lifetime.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current pass (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, entity := range s.entities {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.orchestrator.Run(ctx, entity, s.batchSize); err != nil {
			s.logger.Error("scheduled backfill failed", "entity", entity, "err", err)
		}
	}
}
