package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/domain"
	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// ErrSyncInProgress is returned when Sync is invoked while another run holds
// the queue. Overlapping runs would double-submit batches and corrupt retry
// bookkeeping, so the second caller is rejected rather than queued.
var ErrSyncInProgress = errors.New("sync already in progress")

const eventSyncCompleted = "sync_completed"

// Engine drains the sync queue in sequential batches, ships them to the
// remote endpoint and applies the per-item verdicts back onto the task store
// and the queue.
type Engine struct {
	tasks  domain.TaskRepository
	queue  domain.SyncQueueRepository
	client domain.BatchClient
	state  domain.RunStateRepository
	events domain.EventPublisher
	cfg    config.SyncConfig
	logger zerolog.Logger
	mu     sync.Mutex
}

func NewEngine(
	tasks domain.TaskRepository,
	queue domain.SyncQueueRepository,
	client domain.BatchClient,
	state domain.RunStateRepository,
	events domain.EventPublisher,
	cfg config.SyncConfig,
	logger *zerolog.Logger,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	return &Engine{
		tasks:  tasks,
		queue:  queue,
		client: client,
		state:  state,
		events: events,
		cfg:    cfg,
		logger: logger.With().Str("component", "sync_engine").Logger(),
	}
}

// Sync runs one full drain of the pending queue. Item-level problems never
// escape as errors; they are reported inside the result. An error return
// means either an overlapping run or a local store failure.
func (e *Engine) Sync(ctx context.Context) (*models.SyncResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.mu.Unlock()

	startedAt := time.Now().UTC()

	items, err := e.queue.GetPendingSyncItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending items: %w", err)
	}

	result := &models.SyncResult{Errors: []models.SyncError{}}
	if len(items) == 0 {
		result.Success = true
		return result, nil
	}

	batches := partition(items, e.cfg.BatchSize)
	e.logger.Info().Int("items", len(items)).Int("batches", len(batches)).Msg("sync run started")

	// Batches go out strictly one after another: per-task order must hold and
	// the remote should not see burst load.
	for _, batch := range batches {
		resp, err := e.submitBatch(ctx, batch)
		if err != nil {
			// Transport failure is batch-scoped, not fatal to the run.
			e.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch submission failed")
			for i := range batch {
				if ferr := e.failItem(ctx, &batch[i], err.Error(), result); ferr != nil {
					return nil, ferr
				}
			}
			continue
		}

		if err := e.applyVerdicts(ctx, batch, resp, result); err != nil {
			return nil, err
		}
	}

	result.Success = result.FailedItems == 0

	run := &models.SyncRun{
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
		Success:     result.Success,
		SyncedItems: result.SyncedItems,
		FailedItems: result.FailedItems,
	}
	if err := e.state.SaveRun(ctx, run); err != nil {
		e.logger.Error().Err(err).Msg("save sync run state")
	}
	if e.events != nil {
		_ = e.events.PublishJSON(eventSyncCompleted, run)
	}

	metrics.IncSyncRun(result.Success)
	metrics.AddSyncedItems(result.SyncedItems)
	metrics.AddFailedItems(result.FailedItems)

	e.logger.Info().
		Bool("success", result.Success).
		Int("synced", result.SyncedItems).
		Int("failed", result.FailedItems).
		Msg("sync run finished")

	return result, nil
}

// CheckConnectivity reports whether the remote endpoint is reachable.
func (e *Engine) CheckConnectivity(ctx context.Context) bool {
	return e.client.CheckConnectivity(ctx)
}

// Enqueue appends an operation to the outbox outside of a task mutation.
func (e *Engine) Enqueue(ctx context.Context, taskID, operation, data string) error {
	_, err := e.queue.EnqueueSyncItem(ctx, taskID, operation, data)
	return err
}

// PendingCount returns the number of queue items still eligible for retry.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.queue.CountRetryable(ctx, e.cfg.RetryLimit)
}

// LastSyncedAt returns the most recent confirmed sync time, nil if none.
func (e *Engine) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	return e.tasks.LastSyncedAt(ctx)
}

// LastRun returns the summary of the most recent sync run, nil if none.
func (e *Engine) LastRun(ctx context.Context) (*models.SyncRun, error) {
	return e.state.LastRun(ctx)
}

// FailedItems lists the dead-letter queue entries.
func (e *Engine) FailedItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	return e.queue.GetFailedSyncItems(ctx)
}

func (e *Engine) submitBatch(ctx context.Context, batch []models.SyncQueueItem) (*models.BatchSyncResponse, error) {
	checksum, err := batchChecksum(batch)
	if err != nil {
		return nil, err
	}

	req := models.BatchSyncRequest{
		Items:           batch,
		Checksum:        checksum,
		ClientTimestamp: time.Now().UTC(),
	}
	return e.client.SubmitBatch(ctx, req)
}

func (e *Engine) applyVerdicts(ctx context.Context, batch []models.SyncQueueItem, resp *models.BatchSyncResponse, result *models.SyncResult) error {
	consumed := make([]bool, len(batch))

	for _, verdict := range resp.ProcessedItems {
		item := takeItem(batch, consumed, verdict.ClientID)
		if item == nil {
			e.logger.Warn().Str("client_id", verdict.ClientID).Msg("verdict for unknown batch item")
			continue
		}

		switch {
		case verdict.Status == models.VerdictSuccess:
			if err := e.tasks.MarkTaskSynced(ctx, item.ID, item.TaskID, verdict.ServerID); err != nil {
				return fmt.Errorf("mark task synced: %w", err)
			}
			result.SyncedItems++

		case verdict.Status == models.VerdictConflict && verdict.ResolvedData != nil:
			// Whichever side produced resolved_data is trusted as final; no
			// further negotiation this round.
			if err := e.tasks.ApplyResolvedTask(ctx, item.ID, verdict.ResolvedData, verdict.ServerID); err != nil {
				return fmt.Errorf("apply resolved task: %w", err)
			}
			result.SyncedItems++

		default:
			msg := fmt.Sprintf("server reported %s", verdict.Status)
			if err := e.failItem(ctx, item, msg, result); err != nil {
				return err
			}
		}
	}

	return nil
}

// failItem runs the retry/terminal-state policy for one item and records the
// failure in the run result.
func (e *Engine) failItem(ctx context.Context, item *models.SyncQueueItem, msg string, result *models.SyncResult) error {
	terminal, err := e.queue.RecordSyncFailure(ctx, item.ID, msg, e.cfg.RetryLimit)
	if err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	if err := e.tasks.MarkTaskSyncError(ctx, item.TaskID); err != nil {
		return fmt.Errorf("mark task sync error: %w", err)
	}

	if terminal {
		e.logger.Warn().
			Str("item_id", item.ID).
			Str("task_id", item.TaskID).
			Str("operation", item.Operation).
			Msg("retry limit reached, item moved to dead letter")
	}

	result.FailedItems++
	result.Errors = append(result.Errors, models.SyncError{
		TaskID:    item.TaskID,
		Operation: item.Operation,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// takeItem finds the earliest unconsumed batch item for a task id. Consuming
// in order keeps per-task FIFO when several operations for one task share a
// batch.
func takeItem(batch []models.SyncQueueItem, consumed []bool, taskID string) *models.SyncQueueItem {
	for i := range batch {
		if !consumed[i] && batch[i].TaskID == taskID {
			consumed[i] = true
			return &batch[i]
		}
	}
	return nil
}

// partition splits items into fixed-size groups preserving order.
func partition(items []models.SyncQueueItem, size int) [][]models.SyncQueueItem {
	var batches [][]models.SyncQueueItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// batchChecksum is an md5 digest over the JSON-encoded item ids, enough for
// tamper/corruption detection on the wire.
func batchChecksum(items []models.SyncQueueItem) (string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode checksum input: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
