package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tasksync/internal/models"
)

const taskColumns = `id, title, description, completed, is_deleted, sync_status, server_id, created_at, updated_at, last_synced_at`

// CreateTask inserts the task row and its sync_queue entry in one transaction.
// A create that cannot be queued for sync must not appear to succeed.
func (db *DB) CreateTask(ctx context.Context, task *models.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return ErrTitleRequired
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.SyncStatus = models.SyncStatusPending

	snapshot, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task snapshot: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO tasks (id, title, description, completed, is_deleted, sync_status, server_id, created_at, updated_at, last_synced_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.IsDeleted,
		task.SyncStatus,
		task.ServerID,
		task.CreatedAt,
		task.UpdatedAt,
		task.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if _, err := enqueueItem(ctx, tx, task.ID, models.OperationCreate, string(snapshot), now); err != nil {
		return err
	}

	return tx.Commit()
}

// GetTask returns a task by id. Soft-deleted rows are hidden unless
// includeDeleted is set.
func (db *DB) GetTask(ctx context.Context, id string, includeDeleted bool) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}

	task, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (db *DB) ListTasks(ctx context.Context, includeDeleted bool) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTask writes the new content, resets sync_status to pending and
// enqueues an update operation, all in one transaction.
func (db *DB) UpdateTask(ctx context.Context, task *models.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return ErrTitleRequired
	}

	now := time.Now().UTC()
	task.UpdatedAt = now
	task.SyncStatus = models.SyncStatusPending

	snapshot, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task snapshot: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE tasks SET title = ?, description = ?, completed = ?, updated_at = ?, sync_status = ?
              WHERE id = ? AND is_deleted = 0`
	result, err := tx.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.SyncStatus,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	if _, err := enqueueItem(ctx, tx, task.ID, models.OperationUpdate, string(snapshot), now); err != nil {
		return err
	}

	return tx.Commit()
}

// SoftDeleteTask marks the task deleted and enqueues a delete operation. The
// row stays in place; only the flag flips.
func (db *DB) SoftDeleteTask(ctx context.Context, id string) error {
	task, err := db.GetTask(ctx, id, false)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.IsDeleted = true
	task.UpdatedAt = now
	task.SyncStatus = models.SyncStatusPending

	snapshot, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task snapshot: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE tasks SET is_deleted = 1, updated_at = ?, sync_status = ? WHERE id = ? AND is_deleted = 0`
	result, err := tx.ExecContext(ctx, query, task.UpdatedAt, task.SyncStatus, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	if _, err := enqueueItem(ctx, tx, id, models.OperationDelete, string(snapshot), now); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkTaskSynced records a remote success verdict: the task becomes synced and
// its queue item is drained, atomically.
func (db *DB) MarkTaskSynced(ctx context.Context, itemID, taskID string, serverID *string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `UPDATE tasks SET sync_status = ?, last_synced_at = ?, server_id = COALESCE(?, server_id) WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, models.SyncStatusSynced, now, serverID, taskID); err != nil {
		return fmt.Errorf("failed to mark task synced: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to remove sync queue item: %w", err)
	}

	return tx.Commit()
}

// ApplyResolvedTask applies a server-arbitrated conflict resolution: the
// resolved state overwrites the local row (insert if the task only exists
// remotely), the task becomes synced and the queue item is drained.
func (db *DB) ApplyResolvedTask(ctx context.Context, itemID string, resolved *models.Task, serverID *string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `INSERT INTO tasks (id, title, description, completed, is_deleted, sync_status, server_id, created_at, updated_at, last_synced_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                title = excluded.title,
                description = excluded.description,
                completed = excluded.completed,
                is_deleted = excluded.is_deleted,
                sync_status = excluded.sync_status,
                server_id = COALESCE(excluded.server_id, server_id),
                updated_at = excluded.updated_at,
                last_synced_at = excluded.last_synced_at`
	createdAt := resolved.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = tx.ExecContext(ctx, query,
		resolved.ID,
		resolved.Title,
		resolved.Description,
		resolved.Completed,
		resolved.IsDeleted,
		models.SyncStatusSynced,
		serverID,
		createdAt,
		resolved.UpdatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to apply resolved task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to remove sync queue item: %w", err)
	}

	return tx.Commit()
}

// MarkTaskSyncError flags the task after a failed sync attempt. updated_at is
// left alone so a later conflict resolution is not skewed by bookkeeping.
func (db *DB) MarkTaskSyncError(ctx context.Context, taskID string) error {
	query := `UPDATE tasks SET sync_status = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, models.SyncStatusError, taskID); err != nil {
		return fmt.Errorf("failed to mark task sync error: %w", err)
	}
	return nil
}

// LastSyncedAt returns the most recent confirmed sync time across all tasks,
// nil when nothing has ever synced.
func (db *DB) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := db.QueryRowContext(ctx, `SELECT MAX(last_synced_at) FROM tasks`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last synced at: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var description sql.NullString
	var serverID sql.NullString
	var lastSynced sql.NullTime

	err := row.Scan(
		&t.ID, &t.Title, &description, &t.Completed, &t.IsDeleted,
		&t.SyncStatus, &serverID, &t.CreatedAt, &t.UpdatedAt, &lastSynced,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	if serverID.Valid {
		sid := serverID.String
		t.ServerID = &sid
	}
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return &t, nil
}
