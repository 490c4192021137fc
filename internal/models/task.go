package models

import "time"

// Sync status values for a task row.
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Task is the client-side representation of a todo item. IDs are generated
// locally and never change; ServerID is assigned once the remote accepts the
// task.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	IsDeleted    bool       `json:"is_deleted"`
	SyncStatus   string     `json:"sync_status"`
	ServerID     *string    `json:"server_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
