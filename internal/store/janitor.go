package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor prunes expired artifacts on a cron schedule
type Janitor struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	logger    zerolog.Logger
}

// NewJanitor creates a janitor that removes artifacts older than retention.
// schedule is a five-field cron expression or a descriptor like "@hourly".
func NewJanitor(s *Store, schedule string, retention time.Duration, logger zerolog.Logger) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	j := &Janitor{
		store:     s,
		retention: retention,
		cron:      cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		logger:    logger.With().Str("component", "janitor").Logger(),
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error().Err(err).Msg("prune failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	return j, nil
}

// Start begins running the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.store.now().Add(-j.retention)
	n, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("pruned artifacts")
	}
	return n, nil
}
