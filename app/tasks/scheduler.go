package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultSchedule    = "@every 10m"
	DefaultTaskTimeout = 5 * time.Minute
	DefaultRetryDelay  = time.Second
	maxRetryDelay      = 30 * time.Second
	taskQueueSize      = 300
)

type Scheduler struct {
	runner      Runner
	cron        *cron.Cron
	schedule    string
	workerCount int
	taskTimeout time.Duration
	retryDelay  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

// NewScheduler builds a scheduler that enqueues a pipeline run on every tick of the cron
// schedule. An empty schedule disables periodic runs.
func NewScheduler(runner Runner, schedule string, workerCount int) (*Scheduler, error) {
	c := cron.New()
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("failed to parse schedule %q: %w", schedule, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:      runner,
		cron:        c,
		schedule:    schedule,
		workerCount: max(workerCount, 1),
		taskTimeout: DefaultTaskTimeout,
		retryDelay:  DefaultRetryDelay,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, taskQueueSize),
	}, nil
}

// WithRetryDelay sets the base delay before the first retry; later retries double it.
func (s *Scheduler) WithRetryDelay(d time.Duration) *Scheduler {
	s.retryDelay = d
	return s
}

func (s *Scheduler) WithTaskTimeout(d time.Duration) *Scheduler {
	s.taskTimeout = d
	return s
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if err := s.EnqueueTask(NewRunPipelineTask(s.runner, TriggerStartup)); err != nil {
		slog.Warn("Failed to enqueue startup run", "error", err)
	}

	if s.schedule == "" {
		slog.Debug("No schedule configured, periodic runs disabled")
		return
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.EnqueueTask(NewRunPipelineTask(s.runner, TriggerSchedule)); err != nil {
			slog.Warn("Failed to enqueue scheduled run", "error", err)
		}
	})
	if err != nil {
		slog.Error("Failed to register schedule", "schedule", s.schedule, "error", err)
		return
	}
	s.cron.Start()

	slog.Debug("Scheduler started", "schedule", s.schedule, "workers", s.workerCount)
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := min(s.retryDelay*time.Duration(1<<uint(task.GetRetryCount()-1)), maxRetryDelay)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "trigger", task.GetTrigger(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
