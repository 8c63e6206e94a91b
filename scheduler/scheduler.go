package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Triggerable allows workers to be triggered on a schedule
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Register triggers w on every match of spec. An empty spec disables it.
func (s *Scheduler) Register(name, spec string, w Triggerable) error {
	if spec == "" {
		s.logger.Info("no schedule configured", "job", name)
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("triggering job", "job", name)
		w.Trigger()
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", spec, name, err)
	}
	s.logger.Info("job scheduled", "job", name, "cron", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
