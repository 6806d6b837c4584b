// Package scheduler runs the overdue sweep in-process on a cron schedule.
package scheduler

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"library/internal/errors"
	"library/internal/service"
)

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = 5 * time.Minute

// Scheduler triggers SweepService.Sweep on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	sweeper service.SweepService
	logger  *slog.Logger
}

// New creates a scheduler. Overlapping runs are skipped.
func New(sweeper service.SweepService, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		logger:  logger,
	}
}

// Schedule registers the sweep under a standard five-field spec or a
// descriptor such as "@every 15m".
func (s *Scheduler) Schedule(spec string) error {
	_, err := s.cron.AddFunc(spec, s.RunOnce)
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunOnce performs a single sweep and logs its report.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx)
	if stderrors.Is(err, errors.ErrSweepInProgress) {
		s.logger.Info("overdue sweep skipped", "reason", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("overdue sweep failed", "err", err)
		return
	}
	s.logger.Info("overdue sweep finished",
		"scanned", report.Scanned,
		"marked_overdue", report.MarkedOverdue,
		"reminders_sent", report.RemindersSent,
		"notify_failures", report.NotifyFailures,
		"errors", report.Errors,
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
