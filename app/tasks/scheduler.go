package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftworks/dripfeed/app/cfg"
	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/pipeline"
	"github.com/driftworks/dripfeed/app/source"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler drives the poll/sweep/purge cycle on a ticker. Tasks run on a
// single worker so a sweep can never overlap another sweep or a poll.
type Scheduler struct {
	configCache *channel.ConfigCache
	channelRepo database.ChannelRepository
	monitor     *source.Monitor
	gate        *pipeline.Gate
	runner      *pipeline.Runner
	interval    time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *channel.ConfigCache, channelRepo database.ChannelRepository,
	monitor *source.Monitor, gate *pipeline.Gate, runner *pipeline.Runner) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache: configCache,
		channelRepo: channelRepo,
		monitor:     monitor,
		gate:        gate,
		runner:      runner,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	// Exactly one worker: pipeline sweeps must run strictly one at a time.
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	channelConfigs := s.configCache.GetConfigs()
	if len(channelConfigs) == 0 {
		slog.Debug("No channel configurations found")
		return
	}

	slog.Debug("Registering channel configurations", "count", len(channelConfigs))

	for _, channelConfig := range channelConfigs {
		syncTask := NewSyncChannelConfigTask(channelConfig.Name, channelConfig, s.channelRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncChannelConfigTask", "channel", channelConfig.Name, "error", err)
		}
	}

	s.enqueueTasks()
}

func (s *Scheduler) enqueueTasks() {
	channelConfigs := s.configCache.GetEnabledConfigs()
	if len(channelConfigs) == 0 {
		slog.Debug("No enabled channel configurations found")
		return
	}

	for _, channelConfig := range channelConfigs {
		monitorTask := NewMonitorChannelTask(channelConfig.Name, channelConfig, s.monitor, s.gate)
		if err := s.EnqueueTask(monitorTask); err != nil {
			slog.Warn("Failed to enqueue MonitorChannelTask", "channel", channelConfig.Name, "error", err)
		}
	}

	sweepTask := NewSweepTask(s.runner)
	if err := s.EnqueueTask(sweepTask); err != nil {
		slog.Warn("Failed to enqueue SweepTask", "error", err)
	}

	purgeTask := NewPurgeTask(s.gate)
	if err := s.EnqueueTask(purgeTask); err != nil {
		slog.Warn("Failed to enqueue PurgeTask", "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, task.GetTimeout())
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "channel", task.GetChannelName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
