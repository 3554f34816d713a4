package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calybase/calybase-backend/internal/logger"
)

// Job is one scheduled task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobTimeout bounds a single run.
const JobTimeout = 10 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
	ctx  context.Context
}

// NewScheduler returns a scheduler using six-field specs (with seconds).
// Runs of the same job never overlap. ctx is the parent of every run.
func NewScheduler(ctx context.Context, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
		ctx: ctx,
	}
}

// Add registers job under spec, e.g. "0 30 0 * * *" for 00:30:00 daily.
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.log.Infof("scheduled %s at %q", job.Name(), spec)
	return nil
}

// RunNow executes job once and logs the outcome.
func (s *Scheduler) RunNow(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, JobTimeout)
	defer cancel()

	log := s.log.WithField("job", job.Name())
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error("job failed", err)
		return
	}
	log.Infof("job completed in %s", time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages to our logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf(err, "%s %v", msg, keysAndValues)
}
