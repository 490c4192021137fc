package models

import "time"

// Queue item operations. OperationFailed is terminal: it is only reachable
// through retry exhaustion and such items are skipped by automatic sync runs.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationFailed = "failed"
)

// Verdict statuses returned by the remote batch endpoint per item.
const (
	VerdictSuccess  = "success"
	VerdictConflict = "conflict"
	VerdictError    = "error"
)

// SyncQueueItem is one entry of the durable outbox. Data holds the JSON
// snapshot of the task taken at enqueue time; it is what gets shipped to the
// remote, not a re-read of the store at send time.
type SyncQueueItem struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Operation    string    `json:"operation"`
	Data         string    `json:"data"`
	CreatedAt    time.Time `json:"created_at"`
	RetryCount   int       `json:"retry_count"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// SyncError describes a single failed item within a sync run.
type SyncError struct {
	TaskID    string    `json:"task_id"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResult aggregates a whole sync run. Success is true iff no item failed.
type SyncResult struct {
	Success     bool        `json:"success"`
	SyncedItems int         `json:"synced_items"`
	FailedItems int         `json:"failed_items"`
	Errors      []SyncError `json:"errors"`
}

// BatchSyncRequest is the payload POSTed to {apiBase}/batch.
type BatchSyncRequest struct {
	Items           []SyncQueueItem `json:"items"`
	Checksum        string          `json:"checksum"`
	ClientTimestamp time.Time       `json:"client_timestamp"`
}

// ProcessedItem is the remote's verdict for one submitted item. ClientID
// carries the task id the item referred to; ResolvedData is present only for
// conflict verdicts the server already arbitrated.
type ProcessedItem struct {
	ClientID     string  `json:"client_id"`
	ServerID     *string `json:"server_id,omitempty"`
	Status       string  `json:"status"`
	ResolvedData *Task   `json:"resolved_data,omitempty"`
}

// BatchSyncResponse is the remote's answer to a batch submission.
type BatchSyncResponse struct {
	ProcessedItems []ProcessedItem `json:"processed_items"`
}

// SyncRun is the persisted summary of the most recent sync run, kept in the
// run-state repository for the status endpoint.
type SyncRun struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Success     bool      `json:"success"`
	SyncedItems int       `json:"synced_items"`
	FailedItems int       `json:"failed_items"`
}
