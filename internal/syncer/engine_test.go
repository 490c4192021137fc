package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/database"
	"tasksync/internal/models"
	"tasksync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote records incoming batches and answers with a configurable
// per-item verdict.
type fakeRemote struct {
	mu      sync.Mutex
	batches []models.BatchSyncRequest
	verdict func(item models.SyncQueueItem) models.ProcessedItem
	status  int
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		var req models.BatchSyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.batches = append(f.batches, req)
		status := f.status
		f.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}

		var resp models.BatchSyncResponse
		for _, item := range req.Items {
			resp.ProcessedItems = append(resp.ProcessedItems, f.verdict(item))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func (f *fakeRemote) receivedBatches() []models.BatchSyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BatchSyncRequest(nil), f.batches...)
}

func successVerdict(item models.SyncQueueItem) models.ProcessedItem {
	serverID := "srv-" + item.TaskID
	return models.ProcessedItem{ClientID: item.TaskID, ServerID: &serverID, Status: models.VerdictSuccess}
}

func newTestEngine(t *testing.T, baseURL string, cfg config.SyncConfig) (*Engine, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := NewClient(baseURL, 2*time.Second, time.Second)
	state := repository.NewMemoryRunRepository()
	return NewEngine(db, db, client, state, nil, cfg, &logger), db
}

func createTasks(t *testing.T, db *database.DB, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		task := &models.Task{ID: uuid.NewString(), Title: fmt.Sprintf("task %d", i)}
		require.NoError(t, db.CreateTask(ctx, task))
		ids = append(ids, task.ID)
	}
	return ids
}

func TestSync_EmptyQueue(t *testing.T) {
	remote := &fakeRemote{verdict: successVerdict}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, _ := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.SyncedItems)
	assert.Equal(t, 0, result.FailedItems)
	assert.Empty(t, result.Errors)
	assert.Empty(t, remote.receivedBatches(), "empty queue must not hit the remote")
}

func TestSync_PartitionsAndDrainsQueue(t *testing.T) {
	remote := &fakeRemote{verdict: successVerdict}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()
	createTasks(t, db, 25)

	pendingBefore, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	require.Len(t, pendingBefore, 25)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 25, result.SyncedItems)
	assert.Equal(t, 0, result.FailedItems)
	assert.Empty(t, result.Errors)

	batches := remote.receivedBatches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Items, 10)
	assert.Len(t, batches[1].Items, 10)
	assert.Len(t, batches[2].Items, 5)

	// Concatenating the batches reproduces the original queue order, and the
	// checksum covers exactly the shipped item ids.
	var shipped []string
	for _, batch := range batches {
		ids := make([]string, 0, len(batch.Items))
		for _, item := range batch.Items {
			shipped = append(shipped, item.ID)
			ids = append(ids, item.ID)
		}
		encoded, err := json.Marshal(ids)
		require.NoError(t, err)
		sum := md5.Sum(encoded)
		assert.Equal(t, hex.EncodeToString(sum[:]), batch.Checksum)
		assert.False(t, batch.ClientTimestamp.IsZero())
	}
	for i, item := range pendingBefore {
		assert.Equal(t, item.ID, shipped[i])
	}

	pendingAfter, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	assert.Len(t, pendingAfter, 0)

	tasks, err := db.ListTasks(ctx, false)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, models.SyncStatusSynced, task.SyncStatus)
		require.NotNil(t, task.ServerID)
		assert.Equal(t, "srv-"+task.ID, *task.ServerID)
		assert.NotNil(t, task.LastSyncedAt)
	}

	run, err := engine.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Success)
	assert.Equal(t, 25, run.SyncedItems)
}

func TestSync_TransportFailureExhaustsRetries(t *testing.T) {
	remote := &fakeRemote{verdict: successVerdict, status: http.StatusInternalServerError}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()
	ids := createTasks(t, db, 4)

	// Bring every item to retry_count = 2 so the failing run is the last straw.
	items, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for _, item := range items {
		for i := 0; i < 2; i++ {
			terminal, err := db.RecordSyncFailure(ctx, item.ID, "earlier failure", 3)
			require.NoError(t, err)
			require.False(t, terminal)
		}
	}

	result, err := engine.Sync(ctx)
	require.NoError(t, err, "a failed batch is not fatal to the run")
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.SyncedItems)
	assert.Equal(t, 4, result.FailedItems)
	require.Len(t, result.Errors, 4)

	// None removed; all flipped to terminal failed.
	failed, err := db.GetFailedSyncItems(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 4)
	for _, item := range failed {
		assert.Equal(t, 3, item.RetryCount)
	}

	pending, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 0, "terminal items are excluded from future runs")

	for _, id := range ids {
		task, err := db.GetTask(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusError, task.SyncStatus)
	}
}

func TestSync_ContinuesAfterFailedBatch(t *testing.T) {
	var batchCount int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch" {
			w.WriteHeader(http.StatusOK)
			return
		}
		batchCount++
		if batchCount == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req models.BatchSyncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var resp models.BatchSyncResponse
		for _, item := range req.Items {
			resp.ProcessedItems = append(resp.ProcessedItems, successVerdict(item))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 1, RetryLimit: 3})
	ctx := context.Background()
	createTasks(t, db, 2)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.SyncedItems)
	assert.Equal(t, 1, result.FailedItems)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, batchCount, "the second batch must still be submitted")
}

func TestSync_ConflictVerdictAppliesResolvedData(t *testing.T) {
	resolvedTitle := "server resolved"
	remote := &fakeRemote{}
	remote.verdict = func(item models.SyncQueueItem) models.ProcessedItem {
		serverID := "srv-1"
		return models.ProcessedItem{
			ClientID: item.TaskID,
			ServerID: &serverID,
			Status:   models.VerdictConflict,
			ResolvedData: &models.Task{
				ID:        item.TaskID,
				Title:     resolvedTitle,
				Completed: true,
				UpdatedAt: time.Now().UTC().Add(time.Hour),
			},
		}
	}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()
	ids := createTasks(t, db, 1)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SyncedItems)

	task, err := db.GetTask(ctx, ids[0], false)
	require.NoError(t, err)
	assert.Equal(t, resolvedTitle, task.Title)
	assert.True(t, task.Completed)
	assert.Equal(t, models.SyncStatusSynced, task.SyncStatus)

	pending, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestSync_ConflictWithoutResolvedDataFails(t *testing.T) {
	remote := &fakeRemote{}
	remote.verdict = func(item models.SyncQueueItem) models.ProcessedItem {
		return models.ProcessedItem{ClientID: item.TaskID, Status: models.VerdictConflict}
	}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()
	createTasks(t, db, 1)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedItems)

	pending, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount, "unresolvable conflict runs the retry policy")
}

func TestSync_ErrorVerdictRunsRetryPolicy(t *testing.T) {
	remote := &fakeRemote{}
	remote.verdict = func(item models.SyncQueueItem) models.ProcessedItem {
		return models.ProcessedItem{ClientID: item.TaskID, Status: models.VerdictError}
	}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()
	ids := createTasks(t, db, 1)

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedItems)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ids[0], result.Errors[0].TaskID)
	assert.Equal(t, models.OperationCreate, result.Errors[0].Operation)

	task, err := db.GetTask(ctx, ids[0], false)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, task.SyncStatus)
}

func TestSync_RejectsOverlappingRun(t *testing.T) {
	remote := &fakeRemote{verdict: successVerdict}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, _ := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})

	engine.mu.Lock()
	defer engine.mu.Unlock()

	_, err := engine.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestEnqueueAndPendingCount(t *testing.T) {
	remote := &fakeRemote{verdict: successVerdict}
	ts := httptest.NewServer(remote.handler())
	defer ts.Close()

	engine, db := newTestEngine(t, ts.URL, config.SyncConfig{BatchSize: 10, RetryLimit: 3})
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, "task-x", models.OperationDelete, "{}"))

	count, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	items, err := db.GetPendingSyncItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "task-x", items[0].TaskID)
}

func TestBatchChecksum_Deterministic(t *testing.T) {
	items := []models.SyncQueueItem{{ID: "a"}, {ID: "b"}}

	first, err := batchChecksum(items)
	require.NoError(t, err)
	second, err := batchChecksum(items)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	reordered, err := batchChecksum([]models.SyncQueueItem{{ID: "b"}, {ID: "a"}})
	require.NoError(t, err)
	assert.NotEqual(t, first, reordered, "checksum is order-sensitive")
}

func TestPartition(t *testing.T) {
	items := make([]models.SyncQueueItem, 7)
	batches := partition(items, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	assert.Nil(t, partition(nil, 3))
}
