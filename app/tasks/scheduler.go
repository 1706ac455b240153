package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/shelter-sync/app/database"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const taskTimeout = 10 * time.Minute

type Scheduler struct {
	runner          SyncRunner
	metadataRepo    database.MetadataRepository
	interval        time.Duration
	refreshInterval time.Duration
	workerCount     int
	syncPending     atomic.Bool
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	taskQueue       chan TaskInterface
}

func NewScheduler(runner SyncRunner, metadataRepo database.MetadataRepository,
	interval, refreshInterval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:          runner,
		metadataRepo:    metadataRepo,
		interval:        interval,
		refreshInterval: refreshInterval,
		workerCount:     workerCount,
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, 10),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks(TriggerStartup)

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks(TriggerSchedule)
			}
		}
	}()
}

// Stop cancels running tasks and waits for the workers to exit. Queued
// tasks are discarded.
func (s *Scheduler) Stop() {
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

// EnqueueSync queues a shelter sync unless one is already queued or running.
// It reports whether a new task was queued.
func (s *Scheduler) EnqueueSync(trigger string) (bool, error) {
	if !s.syncPending.CompareAndSwap(false, true) {
		slog.Debug("Shelter sync already pending", "trigger", trigger)
		return false, nil
	}

	if err := s.EnqueueTask(NewSyncSheltersTask(trigger, s.runner)); err != nil {
		s.syncPending.Store(false)
		return false, err
	}

	return true, nil
}

func (s *Scheduler) enqueueTasks(trigger string) {
	due, err := s.syncDue()
	if err != nil {
		slog.Warn("Failed to read last refresh time, skipping", "error", err)
		return
	}
	if !due {
		return
	}

	if _, err := s.EnqueueSync(trigger); err != nil {
		slog.Warn("Failed to enqueue SyncSheltersTask", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) syncDue() (bool, error) {
	lastRefreshed, err := s.metadataRepo.GetLastRefreshed(s.ctx)
	if err != nil {
		return false, err
	}
	if lastRefreshed == nil {
		return true, nil
	}

	nextSyncAt := lastRefreshed.Add(s.refreshInterval)
	if nextSyncAt.After(time.Now().UTC()) {
		slog.Debug("Shelters not due for refresh yet", "next_sync_at", nextSyncAt)
		return false, nil
	}

	return true, nil
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

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.release(task)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() || s.ctx.Err() != nil {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.release(task)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "trigger", task.GetTrigger(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.release(task)
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				s.release(task)
			}
		}
	}()
}

// release clears the pending marker once a sync task is finished for good.
func (s *Scheduler) release(task TaskInterface) {
	if task.GetType() == TaskTypeSyncShelters {
		s.syncPending.Store(false)
	}
}
