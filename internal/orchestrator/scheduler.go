package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Runner starts one orchestrated run. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, trigger Trigger) (RunSummary, error)
}

// SchedulerConfig selects the runs the service starts on its own.
type SchedulerConfig struct {
	StartupRun bool
	// Interval enables periodic runs when positive.
	Interval time.Duration
}

// Scheduler drives the startup run and the optional periodic runs. Results are only logged.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	logger *zap.Logger
	ticker func(d time.Duration) (<-chan time.Time, func())
}

// NewScheduler builds a Scheduler.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("scheduler"),
		ticker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run blocks until ctx finishes.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.StartupRun {
		s.runOnce(ctx, TriggerStartup)
	}
	if s.cfg.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticks, stop := s.ticker(s.cfg.Interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.runOnce(ctx, TriggerSchedule)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, trigger Trigger) {
	summary, err := s.runner.Run(ctx, trigger)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("skipping run; another run is in progress", zap.String("trigger", string(trigger)))
	case ctx.Err() != nil:
		s.logger.Info("run interrupted by shutdown", zap.String("trigger", string(trigger)), zap.Error(err))
	case err != nil:
		s.logger.Error("scheduled run failed", zap.String("trigger", string(trigger)), zap.Error(err))
	default:
		s.logger.Info("scheduled run finished",
			zap.String("trigger", string(trigger)),
			zap.String("run_id", summary.RunID),
			zap.String("message", summary.Message),
		)
	}
}
