package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tasksync/internal/database"
	"tasksync/internal/models"
	"tasksync/internal/service"
	"tasksync/internal/syncer"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Handlers binds the route layer to the task service and the sync engine.
type Handlers struct {
	tasks  *service.TaskService
	engine *syncer.Engine
	logger zerolog.Logger
}

func NewHandlers(tasks *service.TaskService, engine *syncer.Engine, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		tasks:  tasks,
		engine: engine,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.tasks.Create(r.Context(), body.Title, body.Description)
	if err != nil {
		if errors.Is(err, database.ErrTitleRequired) {
			writeError(w, http.StatusBadRequest, "Title required")
			return
		}
		h.logger.Error().Err(err).Msg("create task")
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list tasks")
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error().Err(err).Str("task_id", id).Msg("get task")
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update service.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.tasks.Update(r.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, database.ErrTitleRequired):
			writeError(w, http.StatusBadRequest, "Title required")
		default:
			h.logger.Error().Err(err).Str("task_id", id).Msg("update task")
			writeError(w, http.StatusInternalServerError, "failed to update task")
		}
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error().Err(err).Str("task_id", id).Msg("delete task")
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// TriggerSync runs a manual sync. Unreachable remote short-circuits with 503
// before any batch work; an in-flight run answers 409.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.engine.CheckConnectivity(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "Server not reachable")
		return
	}

	result, err := h.engine.Sync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "Sync already in progress")
			return
		}
		h.logger.Error().Err(err).Msg("sync failed")
		writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Sync completed",
		"summary": result,
	})
}

func (h *Handlers) FailedItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.FailedItems(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list failed items")
		writeError(w, http.StatusInternalServerError, "failed to list dead-letter items")
		return
	}
	if items == nil {
		items = []models.SyncQueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := h.engine.PendingCount(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("pending count")
		writeError(w, http.StatusInternalServerError, "Failed to check sync status")
		return
	}

	lastSynced, err := h.engine.LastSyncedAt(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("last synced at")
		writeError(w, http.StatusInternalServerError, "Failed to check sync status")
		return
	}

	lastRun, err := h.engine.LastRun(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("last run state unavailable")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending":     pending,
		"last_synced": lastSynced,
		"online":      h.engine.CheckConnectivity(ctx),
		"last_run":    lastRun,
		"timestamp":   time.Now().UTC(),
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
