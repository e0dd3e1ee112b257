// Package scheduler runs the periodic referral jobs: approving commissions
// past their hold period, batching payouts and expiring stale codes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/referral"

	"github.com/robfig/cron/v3"
)

// Engine is the part of the referral service the jobs drive.
type Engine interface {
	AutoApprove(ctx context.Context, hold time.Duration) (int, error)
	ScheduleAll(ctx context.Context) (*referral.ScheduleSummary, error)
	ExpireCodes(ctx context.Context) (int64, error)
}

type Config struct {
	// HoldPeriod is how long a commission stays pending before it is
	// approved automatically.
	HoldPeriod time.Duration

	// Cron expressions in UTC. An empty schedule disables the job.
	ApproveSchedule string
	PayoutSchedule  string
	ExpirySchedule  string

	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		HoldPeriod:      14 * 24 * time.Hour,
		ApproveSchedule: "0 * * * *",
		PayoutSchedule:  "0 3 1 * *",
		ExpirySchedule:  "*/15 * * * *",
		JobTimeout:      10 * time.Minute,
	}
}

type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	config Config
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(engine Engine, config Config, log *logger.Logger) *Scheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		engine: engine,
		config: config,
		logger: log.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"auto-approve", s.config.ApproveSchedule, s.RunApprovals},
		{"payouts", s.config.PayoutSchedule, s.RunPayouts},
		{"code-expiry", s.config.ExpirySchedule, s.RunExpiry},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.schedule, func() { s.runJob(job.name, job.run) }); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.schedule, err)
		}
		s.logger.Info("Scheduled %s job (%s)", job.name, job.schedule)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the cron loop, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		s.logger.Error("Job %s failed after %v: %v", name, time.Since(start), err)
		return
	}
	s.logger.Debug("Job %s finished in %v", name, time.Since(start))
}

func (s *Scheduler) RunApprovals(ctx context.Context) error {
	n, err := s.engine.AutoApprove(ctx, s.config.HoldPeriod)
	if err != nil {
		return err
	}
	s.logger.Info("Approved %d commissions past the %v hold", n, s.config.HoldPeriod)
	return nil
}

func (s *Scheduler) RunPayouts(ctx context.Context) error {
	summary, err := s.engine.ScheduleAll(ctx)
	if summary != nil {
		var total int64
		for _, b := range summary.Batches {
			total += b.Amount
		}
		s.logger.Info("Scheduled %d payout batches totalling %d, skipped %d partners",
			len(summary.Batches), total, summary.Skipped)
	}
	return err
}

func (s *Scheduler) RunExpiry(ctx context.Context) error {
	_, err := s.engine.ExpireCodes(ctx)
	return err
}

// RunNow runs every job once in order: approvals first so that the payout
// run sees freshly approved commissions.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return errors.Join(
		s.RunExpiry(ctx),
		s.RunApprovals(ctx),
		s.RunPayouts(ctx),
	)
}
