package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/app/tasks"
	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/logger"
)

// Scheduler runs the configured tasks on their cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	cfg       config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for the tasks in taskMap.
func NewScheduler(log *zap.Logger, cfg config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s, err := gocron.NewScheduler(gocron.WithLogger(logger.NewGocronLogger(log)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log.Named("scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start schedules every enabled task and starts ticking. Disabled tasks,
// tasks missing from the registry and tasks with a bad schedule are
// skipped with a log line.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	names := make([]string, 0, len(s.cfg.Tasks))
	for name := range s.cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	scheduledCount := 0
	for _, taskName := range names {
		taskConfig := s.cfg.Tasks[taskName]
		if !taskConfig.Enabled {
			s.logger.Info("skipping disabled task", zap.String("task_name", taskName))
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("scheduled task configured but not found in registry, skipping", zap.String("task_name", taskName))
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, true),
			gocron.NewTask(func(name string) {
				s.logger.Debug("running scheduled task", zap.String("task_name", name))
				startTime := time.Now()
				if taskErr := taskFunc(ctx); taskErr != nil {
					s.logger.Error("scheduled task failed", zap.String("task_name", name), zap.Error(taskErr))
				}
				s.logger.Debug("finished scheduled task", zap.String("task_name", name), zap.Duration("duration", time.Since(startTime)))
			}, taskName),
			gocron.WithName(taskName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("failed to schedule task",
				zap.String("task_name", taskName),
				zap.String("schedule", taskConfig.Schedule),
				zap.Error(err))
			continue
		}

		s.logger.Info("scheduled task", zap.String("task_name", taskName), zap.String("schedule", taskConfig.Schedule))
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("scheduler started", zap.Int("tasks_scheduled", scheduledCount))

	return nil
}

// Jobs returns the names of the scheduled jobs, sorted.
func (s *Scheduler) Jobs() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	sort.Strings(names)

	return names
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("error during scheduler shutdown", zap.Error(err))
	} else {
		s.logger.Info("scheduler stopped")
	}

	s.running = false

	return err
}
