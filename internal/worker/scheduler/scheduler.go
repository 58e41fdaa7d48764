// Package scheduler runs the nightly accrual sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/microfin-loan-servicing/internal/servicing"
)

// AccrualScheduler triggers the overdue accrual sweep on a cron expression
// with seconds precision, e.g. "0 30 0 * * *" for 00:30 every night
type AccrualScheduler struct {
	cron    *cron.Cron
	accrual servicing.AccrualService
	clock   servicing.Clock
	logger  *slog.Logger
}

// NewAccrualScheduler creates the scheduler and registers the sweep job
func NewAccrualScheduler(
	logger *slog.Logger,
	accrual servicing.AccrualService,
	clock servicing.Clock,
	spec string,
) (*AccrualScheduler, error) {
	s := &AccrualScheduler{
		cron:    cron.New(cron.WithSeconds()),
		accrual: accrual,
		clock:   clock,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(spec, s.runSweep); err != nil {
		return nil, fmt.Errorf("invalid accrual cron expression %q: %w", spec, err)
	}

	return s, nil
}

// Start begins the cron loop in its own goroutine
func (s *AccrualScheduler) Start() {
	s.logger.Info("Starting accrual scheduler")
	s.cron.Start()
}

// Stop halts the cron loop and waits for a running sweep to finish
func (s *AccrualScheduler) Stop() {
	s.logger.Info("Stopping accrual scheduler")
	<-s.cron.Stop().Done()
}

func (s *AccrualScheduler) runSweep() {
	asOf := s.clock.Now()
	s.logger.Info("Scheduled accrual sweep starting", "as_of", asOf.Format("2006-01-02"))

	report := s.accrual.SweepAll(context.Background(), asOf)

	s.logger.Info("Scheduled accrual sweep done",
		"total", report.Total,
		"changed", report.Changed,
		"failed", report.Failed,
	)
}
