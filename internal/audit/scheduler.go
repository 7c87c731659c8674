package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the auditor on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	auditor *Auditor
	timeout time.Duration
}

func NewScheduler(auditor *Auditor, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger))),
		auditor: auditor,
		timeout: timeout,
	}
}

// Start registers the audit job under spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("failed to schedule audit job %q: %w", spec, err)
	}
	zap.L().Info("Scheduled audit job", zap.String("schedule", spec))
	s.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done when a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.auditor.Run(ctx); err != nil {
		zap.L().Error("Scheduled audit failed", zap.Error(err))
	}
}
