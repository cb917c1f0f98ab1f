// Package scheduler wires up the cron job that periodically triggers a
// match-engine cycle over all active searches.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vintedwatch/monitor-service/internal/engine"
)

// Scheduler wraps robfig/cron and drives the match engine. Construct it
// only after the notification sink is ready; the first cycle fires
// immediately on Start.
type Scheduler struct {
	cron   *cron.Cron
	engine *engine.Engine
	log    *zap.Logger
	spec   string // cron spec, e.g. "@every 15s"
}

// New creates a Scheduler that fires every intervalSeconds seconds.
func New(eng *engine.Engine, log *zap.Logger, intervalSeconds int) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: eng,
		log:    log.With(zap.String("component", "scheduler")),
		spec:   fmt.Sprintf("@every %ds", intervalSeconds),
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so registered searches begin reporting without waiting for
// the first tick. Slow cycles never delay the schedule: the engine's
// per-search locks keep overlapping cycles from double-running a search.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.engine.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	// Run immediately on startup (non-blocking)
	go s.engine.RunCycle(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}
