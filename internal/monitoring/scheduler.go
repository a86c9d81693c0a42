// Package monitoring runs the server's background maintenance jobs.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/goals-be/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const pruneTimeout = time.Minute

// EventPruner deletes activity events older than a cutoff.
type EventPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler prunes expired activity events on a cron schedule.
type Scheduler struct {
	pruner    EventPruner
	retention time.Duration
	spec      string
	cron      *cron.Cron
	now       func() time.Time
}

// NewScheduler creates a scheduler that removes events older than
// retention every time spec fires.
func NewScheduler(pruner EventPruner, retention time.Duration, spec string) *Scheduler {
	return &Scheduler{
		pruner:    pruner,
		retention: retention,
		spec:      spec,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:       time.Now,
	}
}

// Start registers the retention job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		s.PruneOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.spec, err)
	}
	log.Info().Str("schedule", s.spec).Dur("retention", s.retention).Msg("Starting background scheduler")
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info().Msg("Stopped background scheduler")
	case <-ctx.Done():
		log.Warn().Msg("Background scheduler did not stop in time")
	}
}

// PruneOnce removes every event older than the retention period.
func (s *Scheduler) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("Scheduler: failed to prune events")
		return 0, err
	}
	metrics.EventsPrunedTotal.Add(float64(n))
	log.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("Scheduler: pruned expired events")
	return n, nil
}
