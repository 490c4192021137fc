package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tasksync/internal/models"

	"github.com/google/uuid"
)

const queueColumns = `id, task_id, operation, data, created_at, retry_count, error_message`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// enqueueItem appends an outbox entry. It runs against either the DB or an
// open transaction so task mutations can commit the store write and the queue
// write as one unit.
func enqueueItem(ctx context.Context, e execer, taskID, operation, data string, createdAt time.Time) (*models.SyncQueueItem, error) {
	item := &models.SyncQueueItem{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Operation: operation,
		Data:      data,
		CreatedAt: createdAt,
	}

	query := `INSERT INTO sync_queue (id, task_id, operation, data, created_at, retry_count, error_message)
              VALUES (?, ?, ?, ?, ?, 0, NULL)`
	_, err := e.ExecContext(ctx, query, item.ID, item.TaskID, item.Operation, item.Data, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return item, nil
}

// EnqueueSyncItem appends an item directly, outside of a task mutation. It
// never checks the task's existence: a delete enqueued after the row is gone
// is valid and expected.
func (db *DB) EnqueueSyncItem(ctx context.Context, taskID, operation, data string) (*models.SyncQueueItem, error) {
	return enqueueItem(ctx, db, taskID, operation, data, time.Now().UTC())
}

// GetPendingSyncItems returns every non-terminal item in FIFO order.
func (db *DB) GetPendingSyncItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
              WHERE operation != ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, models.OperationFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync items: %w", err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

// RemoveSyncItem drains an item after its operation is confirmed synced.
func (db *DB) RemoveSyncItem(ctx context.Context, itemID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove sync item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RecordSyncFailure increments retry_count and stores the error. Once the
// count reaches retryLimit the operation flips to the terminal failed state;
// the row stays queued for inspection and manual recovery.
func (db *DB) RecordSyncFailure(ctx context.Context, itemID, errMsg string, retryLimit int) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var retryCount int
	err = tx.QueryRowContext(ctx, `SELECT retry_count FROM sync_queue WHERE id = ?`, itemID).Scan(&retryCount)
	if err == sql.ErrNoRows {
		return false, ErrItemNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read retry count: %w", err)
	}

	retryCount++
	terminal := retryCount >= retryLimit

	if terminal {
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_queue SET retry_count = ?, error_message = ?, operation = ? WHERE id = ?`,
			retryCount, errMsg, models.OperationFailed, itemID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_queue SET retry_count = ?, error_message = ? WHERE id = ?`,
			retryCount, errMsg, itemID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to record sync failure: %w", err)
	}

	return terminal, tx.Commit()
}

// GetFailedSyncItems lists the dead-letter entries, newest first.
func (db *DB) GetFailedSyncItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
              WHERE operation = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.OperationFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync items: %w", err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

// CountRetryable counts queue items still below the retry limit.
func (db *DB) CountRetryable(ctx context.Context, retryLimit int) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE retry_count < ?`, retryLimit).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count retryable items: %w", err)
	}
	return count, nil
}

func scanQueueItems(rows *sql.Rows) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var errMsg sql.NullString
		err := rows.Scan(&item.ID, &item.TaskID, &item.Operation, &item.Data, &item.CreatedAt, &item.RetryCount, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync item: %w", err)
		}
		if errMsg.Valid {
			msg := errMsg.String
			item.ErrorMessage = &msg
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
