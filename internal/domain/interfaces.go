package domain

import (
	"context"
	"time"

	"tasksync/internal/models"
)

// TaskRepository is the store side consumed by the service and the engine.
// Mutations write the task row and its sync_queue entry as one unit: a task
// change that cannot be queued for sync must not appear to succeed.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string, includeDeleted bool) (*models.Task, error)
	ListTasks(ctx context.Context, includeDeleted bool) ([]models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	SoftDeleteTask(ctx context.Context, id string) error
	MarkTaskSynced(ctx context.Context, itemID, taskID string, serverID *string) error
	ApplyResolvedTask(ctx context.Context, itemID string, resolved *models.Task, serverID *string) error
	MarkTaskSyncError(ctx context.Context, taskID string) error
	LastSyncedAt(ctx context.Context) (*time.Time, error)
}

// SyncQueueRepository is the outbox side consumed by the engine.
type SyncQueueRepository interface {
	EnqueueSyncItem(ctx context.Context, taskID, operation, data string) (*models.SyncQueueItem, error)
	GetPendingSyncItems(ctx context.Context) ([]models.SyncQueueItem, error)
	RemoveSyncItem(ctx context.Context, itemID string) error
	RecordSyncFailure(ctx context.Context, itemID, errMsg string, retryLimit int) (terminal bool, err error)
	GetFailedSyncItems(ctx context.Context) ([]models.SyncQueueItem, error)
	CountRetryable(ctx context.Context, retryLimit int) (int, error)
}

// BatchClient talks to the remote synchronization endpoint.
type BatchClient interface {
	SubmitBatch(ctx context.Context, req models.BatchSyncRequest) (*models.BatchSyncResponse, error)
	CheckConnectivity(ctx context.Context) bool
}

// RunStateRepository keeps the summary of the most recent sync run for the
// status endpoint.
type RunStateRepository interface {
	SaveRun(ctx context.Context, run *models.SyncRun) error
	LastRun(ctx context.Context) (*models.SyncRun, error)
}

// EventPublisher decouples domain events from their consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
