package tasks

import (
	"context"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to manage background sync processing.
// Example usage:
//
//	scheduler := NewScheduler(pipeline, metadataRepo, interval, refreshInterval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueSync(TriggerAPI)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueSync(trigger string) (bool, error)
}

// SyncRunner runs one shelter synchronization.
type SyncRunner interface {
	Run(ctx context.Context) (*shelter.Summary, error)
}
