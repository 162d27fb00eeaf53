package background

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ScheduleOff disables a job
const ScheduleOff = "off"

// Job is a named unit of work with its cron schedule
type Job struct {
	Name     string
	Schedule string
	Run      JobFunc
}

// Scheduler triggers jobs on their cron schedules in UTC.
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    *Runner
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(runner *Runner, logger *slog.Logger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: scheduler,
		runner:    runner,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds each job whose schedule is not "off".
func (s *Scheduler) Register(jobs ...Job) error {
	for _, job := range jobs {
		spec := strings.TrimSpace(job.Schedule)
		if spec == "" || strings.EqualFold(spec, ScheduleOff) {
			s.logger.Info("job disabled", slog.String("job", job.Name))
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(spec, false),
			gocron.NewTask(func() {
				// failures are logged by the runner
				_ = s.runner.Run(s.ctx, job.Name, job.Run)
			}),
			gocron.WithName(job.Name),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", job.Name, spec, err)
		}
		s.logger.Info("job scheduled", slog.String("job", job.Name), slog.String("schedule", spec))
	}
	return nil
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler started")
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}
