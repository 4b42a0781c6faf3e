package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionScheduler runs the audit retention cleanup on a recurring cron
// schedule. The DELETE /logs/cleanup endpoint stays available as a manual
// override.
type RetentionScheduler struct {
	cron       *cron.Cron
	service    AuditService
	daysToKeep int
	logger     zerolog.Logger
}

// NewRetentionScheduler wires the cleanup job onto the given cron expression
// (standard five-field syntax, e.g. "10 3 * * *" for 03:10 daily).
func NewRetentionScheduler(service AuditService, schedule string, daysToKeep int, logger zerolog.Logger) (*RetentionScheduler, error) {
	if daysToKeep < 0 {
		return nil, ErrInvalidRetention
	}
	if daysToKeep == 0 {
		daysToKeep = DefaultRetentionDays
	}

	s := &RetentionScheduler{
		cron:       cron.New(),
		service:    service,
		daysToKeep: daysToKeep,
		logger:     logger.With().Str("component", "retention_scheduler").Logger(),
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start launches the background schedule.
func (s *RetentionScheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("days_to_keep", s.daysToKeep).Msg("retention scheduler started")
}

// Stop halts the schedule and waits for a running job to finish.
func (s *RetentionScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("retention scheduler stopped")
}

func (s *RetentionScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.service.Cleanup(ctx, s.daysToKeep)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled retention cleanup failed")
		return
	}

	s.logger.Info().Int64("deleted", deleted).Msg("scheduled retention cleanup finished")
}
